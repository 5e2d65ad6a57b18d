// Command webterm is the process entrypoint for both roles the server
// runs as: the supervisor (default) and a worker (invoked via self
// re-exec with the -worker argv marker, since a process forked while
// other Go-scheduled OS threads are running can deadlock). There is no
// other CLI surface: no flags, no subcommands.
package main

import (
	"os"
	"runtime"

	"github.com/momentics/webterm/internal/control"
	"github.com/momentics/webterm/internal/supervisor"
)

func main() {
	// The signal masks internal/ksys.NewSignalFD installs are a per-OS-thread
	// property; locking main to its starting thread before that runs keeps
	// the mask in effect on the thread signalfd reads happen on.
	runtime.LockOSThread()

	if len(os.Args) > 1 && os.Args[1] == supervisor.WorkerFlag {
		runWorker()
		return
	}
	runSupervisor()
}

func runSupervisor() {
	logger := control.NewLogger("supervisor")

	selfPath, err := os.Executable()
	if err != nil {
		logger.Printf("supervisor: resolve self path: %v", err)
		os.Exit(1)
	}

	if err := supervisor.Run(control.DefaultConfig(), logger, selfPath); err != nil {
		logger.Printf("supervisor: fatal: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func runWorker() {
	logger := control.NewLogger("worker")
	if err := supervisor.RunWorker(logger); err != nil {
		logger.Printf("worker: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}
