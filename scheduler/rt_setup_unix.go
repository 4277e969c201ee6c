//go:build unix

package scheduler

import "syscall"

// ApplyRTSetup makes a best-effort attempt to raise the calling OS
// thread's scheduling priority via setpriority(2) (nice value -10). Never fatal: a failure (e.g.
// insufficient privilege in a container) just means the RT thread runs
// at normal priority, matching spec.md §4.1's "apply_rt_setup never
// fails the engine" contract. Mirrors the teacher's
// core/crash_handler_unix.go / _wasm.go build-tag split for
// platform-specific behavior.
func ApplyRTSetup() error {
	return syscall.Setpriority(syscall.PRIO_PROCESS, 0, -10)
}
