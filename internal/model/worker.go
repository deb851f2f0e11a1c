package model

import (
	"os/exec"
	"time"
)

// WorkerStatus tracks a Worker through its process lifecycle.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerStopping WorkerStatus = "stopping"
	WorkerStopped  WorkerStatus = "stopped"
	WorkerFailed   WorkerStatus = "failed"
)

// Health is a Worker's heartbeat-derived health.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// Worker is owned by ClusterSupervisor: created on scaleUp, destroyed on
// graceful stop or forced kill after timeout.
type Worker struct {
	ID                  string
	Slot                int // stable logical-worker identity, carried across restarts
	Cmd                 *exec.Cmd
	Port                int
	Status              WorkerStatus
	StartedAt           time.Time
	RestartCount        int
	LastHeartbeat       time.Time
	Health              Health
	ConsecutiveFailures int

	// Inbox delivers supervisor IPC messages (broadcast/random-send) to
	// this worker; Outbox carries heartbeats back to the supervisor.
	Inbox  chan []byte
	Outbox chan []byte
	Done   chan struct{}
}

// RedirectMode is PortManager's port-redirect behavior.
type RedirectMode string

const (
	RedirectTransparent RedirectMode = "transparent"
	RedirectMessage     RedirectMode = "message"
	RedirectRedirect    RedirectMode = "redirect"
)

// RedirectStats accumulates one RedirectInstance's request counters.
type RedirectStats struct {
	TotalRequests int64
	SuccessCount  int64
	FailureCount  int64
	RollingAvgNS  int64
}

// RedirectInstance is owned by PortManager.
type RedirectInstance struct {
	FromPort  int
	ToPort    int
	Mode      RedirectMode
	Options   map[string]interface{}
	Stats     RedirectStats
	StartedAt time.Time

	stopCh chan struct{}
}

// Stop signals the redirect listener to shut down.
func (r *RedirectInstance) Stop() {
	if r.stopCh != nil {
		close(r.stopCh)
	}
}

// StopChannel lazily creates and returns the stop channel.
func (r *RedirectInstance) StopChannel() chan struct{} {
	if r.stopCh == nil {
		r.stopCh = make(chan struct{})
	}
	return r.stopCh
}
