// Package proc is the snapshot source of memstats: structured, read-only
// access to the Linux /proc interfaces needed to attribute physical pages
// to processes.
//
// # Overview
//
// FS wraps a procfs mount (github.com/prometheus/procfs) and exposes:
//
//	AllProcs / Proc / Self   process handles
//	Maps(pid)                classified /proc/<pid>/maps
//	WalkPages(pid, mapping)  streamed /proc/<pid>/pagemap entries
//	ReadIOMem                /proc/iomem segments (System RAM layout)
//	OpenKPageFlags           /proc/kpageflags reader
//	ShmSegments              /proc/sysvipc/shm inventory
//	SelfRSS, MemAvailable    inputs of the scan memory ceiling
//
// Proc pairs a PID with its procfs.Proc under the FS root and keeps no
// process data itself. Every accessor (Cmdline, Comm, UID, Environ, PPID,
// Status, FDCount, Cgroups) re-reads procfs, so a process that exited
// between listing and reading yields an error instead of stale data.
// Callers treat such errors as "vanished".
//
// # Mappings
//
// Mapping.Kind distinguishes regular files (Path), anonymous memory (Anonymous,
// Heap, Stack, ThreadStack), kernel-provided pages (Vdso, Vvar, Vsyscall) and
// SysV shared memory attachments (SysV). For SysV mappings the kernel names
// the mapping "/SYSV<key in hex> (deleted)" and reports the shmid as inode;
// Mapping.ShmID() recovers the (key, shmid) identity. Vsyscall has no
// page-table entries and must not be walked.
//
// # Pagemap
//
// Each virtual page has one little-endian 64-bit record:
//
//	bit 63     page present
//	bit 62     page swapped
//	bit 61     file-page or shared-anon
//	bit 56     page exclusively mapped
//	bit 55     soft-dirty
//	bits 0-54  PFN if present
//	bits 0-4   swap type if swapped
//	bits 5-54  swap offset if swapped
//
// PFNs read as zero without CAP_SYS_ADMIN; RequireRoot guards against
// silently wrong results.
//
// # Physical pages
//
// /proc/kpageflags holds one 64-bit flag word per PFN. FlagTable restricts
// lookups to the System RAM segments of /proc/iomem. CompoundCounters
// aggregates flags over a run of frames, letting tail pages inherit their
// head page's flags.
package proc
