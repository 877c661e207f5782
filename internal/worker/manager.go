package worker

import (
	"context"
	"errors"
	"sync"
)

// Manager owns a fixed set of jobs.
type Manager struct {
	mu      sync.Mutex
	build   func() []*Job
	current []*Job
}

// NewManager returns a manager that creates its jobs with build on every
// Start, so a stopped manager can be started again.
func NewManager(build func() []*Job) *Manager {
	return &Manager{build: build}
}

// Start creates and starts all jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return errors.New("jobs are already running")
	}
	m.current = m.build()
	for _, j := range m.current {
		j.Start(ctx)
	}
	return nil
}

// Stop stops all jobs and waits for them to exit.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return errors.New("no running jobs")
	}
	var wg sync.WaitGroup
	for _, j := range m.current {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			j.Stop()
		}(j)
	}
	wg.Wait()
	m.current = nil
	return nil
}

// IsRunning reports whether jobs are started.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}
