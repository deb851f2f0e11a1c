package cluster

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nehonix/xypriss/internal/util/log"
)

// WatchAndRestart watches paths for changes and performs a debounced
// rolling restart of the cluster on any burst of events. It runs until
// stop is closed.
func (s *Supervisor) WatchAndRestart(paths []string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			log.Warn("cluster file watch: failed to watch path", log.Pairs{"path": p, "error": err.Error()})
		}
	}

	var debounce *time.Timer
	restart := make(chan struct{}, 1)

	for {
		select {
		case <-stop:
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if debounce == nil {
				debounce = time.AfterFunc(fileWatchDebounce, func() {
					select {
					case restart <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(fileWatchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("cluster file watch error", log.Pairs{"error": err.Error()})
		case <-restart:
			debounce = nil
			deadline := fileWatchDebounce * time.Duration(s.MaxRestarts)
			done := make(chan error, 1)
			go func() { done <- s.RestartCluster() }()
			select {
			case err := <-done:
				if err != nil {
					log.Error("rolling restart on file change failed", log.Pairs{"error": err.Error()})
				}
			case <-time.After(deadline):
				log.Error("rolling restart exceeded deadline, hard-shutdown", log.Pairs{"deadline": deadline.String()})
				return nil
			}
		}
	}
}
