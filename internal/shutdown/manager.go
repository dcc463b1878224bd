package shutdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/logger"
)

type Component interface {
	Shutdown(ctx context.Context) error
	Name() string
}

type Manager struct {
	components []Component
	mu         sync.RWMutex
	shutdown   chan struct{}
	done       chan struct{}
	once       sync.Once
}

func NewManager() *Manager {
	return &Manager{
		components: make([]Component, 0),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (m *Manager) Register(component Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
	logger.Info.Printf("Registered shutdown component: %s", component.Name())
}

// Shutdown stops components in reverse registration order, one at a time, so a
// component can still use the ones registered before it. Every component gets a
// chance to run even after an earlier one fails; the timeout bounds the whole pass.
func (m *Manager) Shutdown(timeout time.Duration) error {
	var result error
	m.once.Do(func() {
		result = m.run(timeout)
	})
	return result
}

func (m *Manager) run(timeout time.Duration) error {
	logger.Info.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer close(m.done)

	close(m.shutdown)

	m.mu.RLock()
	components := make([]Component, len(m.components))
	copy(components, m.components)
	m.mu.RUnlock()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		comp := components[i]

		if ctx.Err() != nil {
			logger.Error.Println("Shutdown timed out")
			return errors.Join(append(errs, ctx.Err())...)
		}

		logger.Info.Printf("Shutting down component: %s", comp.Name())
		if err := comp.Shutdown(ctx); err != nil {
			logger.Error.Printf("Error shutting down %s: %v", comp.Name(), err)
			errs = append(errs, err)
			continue
		}
		logger.Info.Printf("Successfully shut down: %s", comp.Name())
	}

	if len(errs) == 0 {
		logger.Info.Println("All components shut down successfully")
	}
	return errors.Join(errs...)
}

func (m *Manager) IsShuttingDown() bool {
	select {
	case <-m.shutdown:
		return true
	default:
		return false
	}
}

func (m *Manager) Wait() {
	<-m.done
}
