package cluster

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepFactory spawns a short-lived `sleep` process standing in for a real
// worker binary, so tests exercise process supervision without needing the
// xypriss binary itself.
func sleepFactory(seconds string) WorkerFactory {
	return func(id string, port int) (*exec.Cmd, error) {
		cmd := exec.Command("sleep", seconds)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

func TestStartClusterSpawnsRequestedCount(t *testing.T) {
	s := New("127.0.0.1", 9100, sleepFactory("5"))
	require.NoError(t, s.StartCluster(3))
	defer s.Stop(nil)

	health := s.GetClusterHealth()
	assert.Equal(t, 3, health.TotalWorkers)
}

func TestScaleUpAndDown(t *testing.T) {
	s := New("127.0.0.1", 9200, sleepFactory("5"))
	require.NoError(t, s.StartCluster(1))
	defer s.Stop(nil)

	require.NoError(t, s.ScaleUp(2))
	assert.Equal(t, 3, s.GetClusterHealth().TotalWorkers)

	s.GracePeriod = 100 * time.Millisecond
	require.NoError(t, s.ScaleDown(1))
	assert.Equal(t, 2, s.GetClusterHealth().TotalWorkers)
}

func TestBroadcastToWorkersDeliversToAll(t *testing.T) {
	s := New("127.0.0.1", 9300, sleepFactory("5"))
	require.NoError(t, s.StartCluster(2))
	defer s.Stop(nil)

	s.BroadcastToWorkers([]byte("ping"))

	s.mu.Lock()
	for _, w := range s.workers {
		select {
		case msg := <-w.Inbox:
			assert.Equal(t, "ping", string(msg))
		default:
			t.Fatalf("worker %s did not receive broadcast", w.ID)
		}
	}
	s.mu.Unlock()
}

func TestSendToRandomWorkerNoWorkersErrors(t *testing.T) {
	s := New("127.0.0.1", 9400, sleepFactory("5"))
	err := s.SendToRandomWorker([]byte("x"))
	assert.Error(t, err)
}

func TestAutoScalerScalesUpAfterSustainedLoad(t *testing.T) {
	s := New("127.0.0.1", 9500, sleepFactory("5"))
	require.NoError(t, s.StartCluster(1))
	defer s.Stop(nil)

	as := NewAutoScaler(s, 5, 1, 1, 4)
	as.aboveSince = time.Now().Add(-scaleUpSustain - time.Second)
	as.Evaluate(10)

	assert.Equal(t, 2, s.GetClusterHealth().TotalWorkers)
}

func TestGetClusterMetricsAggregatesRestarts(t *testing.T) {
	s := New("127.0.0.1", 9600, sleepFactory("5"))
	require.NoError(t, s.StartCluster(2))
	defer s.Stop(nil)

	m := s.GetClusterMetrics()
	assert.Len(t, m.PerWorker, 2)
	assert.Equal(t, 0, m.TotalRestarts)
}
