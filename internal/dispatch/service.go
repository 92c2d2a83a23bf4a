// Package dispatch fans newly firing alerts out to the configured
// notification channels through a bounded worker pool, so a slow provider
// never stalls the poll cycle.
package dispatch

import (
	"context"
	"sync"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
)

// ProviderFunc delivers one alert task over a single channel.
type ProviderFunc func(ctx context.Context, task models.Task) error

// Service processes alert Tasks and dispatches notifications.
type Service struct {
	logger    *logging.Logger
	config    config.Config
	tasks     chan models.Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
	providers map[string]ProviderFunc
}

// New constructs a dispatch Service. Providers map channel name to sender;
// an empty map makes the service a no-op sink.
func New(logger *logging.Logger, cfg config.Config, providers map[string]ProviderFunc) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:    logger,
		config:    cfg,
		tasks:     make(chan models.Task, cfg.Dispatch.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		providers: providers,
	}
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.config.Dispatch.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues a Task for processing. A full queue drops the task with
// an error log rather than blocking the caller.
func (s *Service) QueueTask(task models.Task) {
	select {
	case s.tasks <- task:
		s.logger.Infof("Queued alert task: rule=%s request_id=%s", task.RuleID, task.RequestID)
	default:
		s.logger.Errorf("Queue full, dropping alert task: rule=%s request_id=%s", task.RuleID, task.RequestID)
	}
}

// worker processes Tasks until context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Dispatch worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// handleTask delivers one task through every configured provider. Delivery
// failures are logged per channel and never propagated.
func (s *Service) handleTask(task models.Task) {
	for name, send := range s.providers {
		if err := send(s.ctx, task); err != nil {
			s.logger.Errorf("Dispatch via %s failed for rule=%s: %v", name, task.RuleID, err)
			continue
		}
		s.logger.Infof("Dispatched rule=%s via %s", task.RuleID, name)
	}
}
