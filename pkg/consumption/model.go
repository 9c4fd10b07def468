package consumption

import (
	"fmt"
	"os"

	"github.com/ja7ad/memstats/pkg/system/util"
	"github.com/ja7ad/memstats/pkg/types"
	"sigs.k8s.io/yaml"
)

// Config holds the scan settings.
// Units:
//   - MemLimit: bytes of the scanner's own RSS before it stops admitting
//     processes; 0 means half of MemAvailable at start.
//   - Workers: goroutines collecting process info in groups mode.
type Config struct {
	MemLimit     uint64 `json:"mem_limit"`
	Workers      int    `json:"workers"`
	ForceReadShm bool   `json:"force_read_shm"`

	// Filter selects the processes to scan, in the filter grammar.
	Filter string `json:"filter"`

	// Splits, applied in this order: custom chains, uid, env, cgroup, pids.
	SplitCustom []string `json:"split_custom"`
	SplitUID    bool     `json:"split_uid"`
	SplitEnv    string   `json:"split_env"`
	SplitCgroup bool     `json:"split_cgroup"`
	SplitPIDs   []string `json:"split_pids"` // PIDs, lists or a..b ranges

	// InstanceHelper is the command asked for database instance records.
	InstanceHelper string `json:"instance_helper"`
}

// _defaultConfig returns a Config pre-filled with defaults.
func _defaultConfig() *Config {
	return &Config{
		MemLimit: 0,               // resolved from MemAvailable
		Workers:  util.HalfCPUs(), // half the CPUs, at least one
	}
}

// LoadConfig reads a YAML (or JSON) config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Totals is the single-mode result: every scanned process folded into one
// set, sizes in bytes.
type Totals struct {
	Processes int         `json:"processes"`
	MemRSS    types.Bytes `json:"mem_rss"`
	MemAnon   types.Bytes `json:"mem_anon"`
	SwapRSS   types.Bytes `json:"swap_rss"`
	SwapAnon  types.Bytes `json:"swap_anon"`
	ShmMem    types.Bytes `json:"shm_mem"`
	ShmSwap   types.Bytes `json:"shm_swap"`
	PTE       types.Bytes `json:"pte"`
	FDs       int         `json:"fds"`
}
