package prof

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an unknown profile, or the CPU profile
	// passed where only snapshots are valid.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile names a pprof profile.
type Profile string

const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
)

func (p Profile) String() string { return string(p) }

var (
	cpuMutex  sync.Mutex
	cpuActive bool
)

// StartCPU starts CPU profiling to w.
func StartCPU(w io.Writer) error {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if cpuActive {
		return ErrCPUProfileActive
	}
	if err := pprof.StartCPUProfile(w); err != nil {
		return err
	}
	cpuActive = true
	return nil
}

// StopCPU stops CPU profiling. It is safe to call when profiling is not
// active.
func StopCPU() {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()

	if !cpuActive {
		return
	}
	pprof.StopCPUProfile()
	cpuActive = false
}

// IsCPUActive reports whether CPU profiling is active.
func IsCPUActive() bool {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	return cpuActive
}

// WriteTo writes a snapshot profile to w in protobuf form.
func WriteTo(profile Profile, w io.Writer) error {
	if profile == ProfileCPU {
		return fmt.Errorf("%s: %w", profile, ErrInvalidProfile)
	}
	p := pprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("%s: %w", profile, ErrInvalidProfile)
	}
	if profile == ProfileHeap {
		runtime.GC()
	}
	return p.WriteTo(w, 0)
}

// Session is a CPU profile and a deferred heap snapshot bound to files.
type Session struct {
	cpu      *os.File
	heapPath string
}

// Start creates cpuPath and starts CPU profiling to it, and records heapPath
// for Stop. Empty paths are skipped.
func Start(cpuPath, heapPath string) (*Session, error) {
	s := &Session{heapPath: heapPath}
	if cpuPath == "" {
		return s, nil
	}
	f, err := os.Create(cpuPath)
	if err != nil {
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	if err := StartCPU(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	s.cpu = f
	return s, nil
}

// Stop ends CPU profiling and writes the heap snapshot. Calling it again
// does nothing.
func (s *Session) Stop() error {
	var errs []error
	if s.cpu != nil {
		StopCPU()
		if err := s.cpu.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cpu profile: %w", err))
		}
		s.cpu = nil
	}
	if s.heapPath != "" {
		if err := writeFile(ProfileHeap, s.heapPath); err != nil {
			errs = append(errs, fmt.Errorf("heap profile: %w", err))
		}
		s.heapPath = ""
	}
	return errors.Join(errs...)
}

func writeFile(profile Profile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(profile, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
