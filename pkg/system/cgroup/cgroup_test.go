//go:build linux

package cgroup

import (
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Detect(t *testing.T) {
	ver, str, err := Detect()
	require.NoError(t, err)
	assert.NotEmpty(t, str)

	t.Logf("detected %s: %s", ver, str)
}

func Test_Path(t *testing.T) {
	v2 := []procfs.Cgroup{
		{HierarchyID: 0, Controllers: nil, Path: "/system.slice/sshd.service"},
	}
	v1 := []procfs.Cgroup{
		{HierarchyID: 4, Controllers: []string{"cpu", "cpuacct"}, Path: "/user.slice"},
		{HierarchyID: 7, Controllers: []string{"memory"}, Path: "/user.slice/user-1000.slice"},
	}
	hybrid := append(append([]procfs.Cgroup{}, v1...), v2...)

	t.Run("v2_unified", func(t *testing.T) {
		assert.Equal(t, "/system.slice/sshd.service", Path(V2, v2))
	})
	t.Run("v1_memory_controller", func(t *testing.T) {
		assert.Equal(t, "/user.slice/user-1000.slice", Path(V1, v1))
	})
	t.Run("hybrid_prefers_memory", func(t *testing.T) {
		assert.Equal(t, "/user.slice/user-1000.slice", Path(Hybrid, hybrid))
		assert.Equal(t, "/system.slice/sshd.service", Path(Hybrid, v2))
	})
	t.Run("no_match", func(t *testing.T) {
		assert.Empty(t, Path(V1, v2))
		assert.Empty(t, Path(Unsupported, hybrid))
	})
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "cgroup v1", V1.String())
	assert.Equal(t, "cgroup v2", V2.String())
	assert.Equal(t, "cgroup hybrid", Hybrid.String())
	assert.Equal(t, "unsupported", Unsupported.String())
}
