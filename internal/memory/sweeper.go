package memory

import "time"

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 5 * time.Second

// StartSweeper sweeps once immediately and then on every interval until Stop
// is called. Calling it while a sweeper is already running is a no-op.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s.sweeperMu.Lock()
	defer s.sweeperMu.Unlock()
	if s.sweeperStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.sweeperStop = stop
	s.sweeperDone = done

	s.SweepOnce()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.SweepOnce()
			case <-stop:
				return
			}
		}
	}()
	s.log.Info("sweeper started", "interval", interval)
}

// Stop shuts down the background sweeper and waits for it to exit. It is safe
// to call more than once, and without a prior StartSweeper.
func (s *Store) Stop() {
	s.sweeperMu.Lock()
	stop, done := s.sweeperStop, s.sweeperDone
	s.sweeperStop, s.sweeperDone = nil, nil
	s.sweeperMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.log.Info("sweeper stopped")
}
