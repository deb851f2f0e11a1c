package cluster

import (
	"os"
	"syscall"
)

// shutdownSignal is the graceful-stop signal sent to a worker process
// before the grace period elapses.
func shutdownSignal() os.Signal {
	return syscall.SIGTERM
}
