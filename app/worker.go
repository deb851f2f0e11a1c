package app

import (
	"fmt"
	"os"
	"os/exec"
)

// reExecWorkerFactory spawns a worker by re-executing the current binary
// with --worker and --port=N, the idiom cluster.WorkerFactory documents for
// production use.
func reExecWorkerFactory(id string, port int) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("app: resolve executable: %w", err)
	}
	cmd := exec.Command(self, "--worker", fmt.Sprintf("--worker-id=%s", id), fmt.Sprintf("--port=%d", port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("app: start worker %s: %w", id, err)
	}
	return cmd, nil
}
