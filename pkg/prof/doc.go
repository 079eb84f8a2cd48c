// Package prof wraps [runtime/pprof] for the vcpsim command.
//
// A [Session] streams a CPU profile to a file while a command runs and
// writes a heap snapshot when it stops:
//
//	s, err := prof.Start("cpu.prof", "heap.prof")
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Either path may be empty to skip that profile. Only one CPU profile can be
// active in a process; a second [StartCPU] returns [ErrCPUProfileActive].
package prof
