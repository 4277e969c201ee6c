//go:build !unix

package scheduler

// ApplyRTSetup is a no-op on platforms without a priority-niceing
// syscall available through this build (e.g. Windows, wasm); the RT loop
// still runs, just without an OS priority boost.
func ApplyRTSetup() error { return nil }
