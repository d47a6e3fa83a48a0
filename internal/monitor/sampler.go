package monitor

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// Reading is one raw measurement from a Sampler.
type Reading struct {
	RSSBytes   uint64
	HeapBytes  uint64
	CPUSeconds float64
}

// Sampler measures the current process.
type Sampler interface {
	Read() (Reading, error)
}

// ProcSampler reads RSS and CPU time from /proc/self/stat.
type ProcSampler struct {
	fs procfs.FS
}

// NewSampler returns a ProcSampler when procfs is mounted and a
// MemStatsSampler otherwise.
func NewSampler() Sampler {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return MemStatsSampler{}
	}
	s := &ProcSampler{fs: fs}
	if _, err = s.Read(); err != nil {
		return MemStatsSampler{}
	}
	return s
}

// Read implements Sampler.
func (s *ProcSampler) Read() (Reading, error) {
	proc, err := s.fs.Self()
	if err != nil {
		return Reading{}, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return Reading{}, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Reading{
		RSSBytes:   uint64(stat.ResidentMemory()),
		HeapBytes:  ms.HeapAlloc,
		CPUSeconds: stat.CPUTime(),
	}, nil
}

// MemStatsSampler approximates RSS with the memory the Go runtime has
// obtained from the OS. CPU time is not available.
type MemStatsSampler struct{}

// Read implements Sampler.
func (MemStatsSampler) Read() (Reading, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Reading{
		RSSBytes:  ms.Sys - ms.HeapReleased,
		HeapBytes: ms.HeapAlloc,
	}, nil
}
