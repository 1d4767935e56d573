package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qline/queue-service/internal/domain"
	"github.com/qline/queue-service/internal/repository"
	"github.com/qline/queue-service/internal/service"
)

// NoShowSweeper periodically transitions long-called customers to NO_SHOW.
// Each unit of work goes through the QueueService mutation shell and
// inherits its conflict-retry policy; a unit that exhausts retries is
// logged and abandoned until the next tick.
type NoShowSweeper struct {
	queues   repository.QueueRepository
	service  *service.QueueService
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewNoShowSweeper constructs the sweeper.
func NewNoShowSweeper(queues repository.QueueRepository, queueService *service.QueueService, logger *zap.Logger, interval time.Duration) *NoShowSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NoShowSweeper{
		queues:   queues,
		service:  queueService,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the sweep loop.
func (w *NoShowSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return errors.New("no-show sweeper already running")
	}
	w.isRunning = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("no-show sweeper started", zap.Duration("interval", w.interval))
	return nil
}

// Stop signals the loop and waits for it to drain.
func (w *NoShowSweeper) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("no-show sweeper stopped")
}

func (w *NoShowSweeper) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep pass over all active queues.
func (w *NoShowSweeper) SweepOnce(ctx context.Context) {
	ids, err := w.queues.ListActiveIDs(ctx)
	if err != nil {
		w.logger.Error("list active queues", zap.Error(err))
		return
	}

	for _, queueID := range ids {
		if err := w.sweepQueue(ctx, queueID); err != nil {
			w.logger.Error("sweep queue", zap.String("queue_id", queueID), zap.Error(err))
			// keep sweeping the remaining queues
		}
	}
}

func (w *NoShowSweeper) sweepQueue(ctx context.Context, queueID string) error {
	queue, err := w.queues.Load(ctx, queueID)
	if err != nil {
		return err
	}

	now := w.now()
	for _, c := range queue.NoShowEligible(now) {
		err := w.service.MarkNoShow(ctx, queueID, c.ID, now)
		switch {
		case err == nil:
			w.logger.Info("customer marked no-show by sweep",
				zap.String("queue_id", queueID),
				zap.String("customer_id", c.ID))
		case errors.Is(err, domain.ErrConflict):
			w.logger.Warn("abandoning no-show after retry exhaustion",
				zap.String("queue_id", queueID),
				zap.String("customer_id", c.ID))
		case errors.Is(err, domain.ErrNotCalled), errors.Is(err, domain.ErrCustomerNotFound):
			// staff got there first; nothing to do
		default:
			w.logger.Error("mark no-show",
				zap.String("queue_id", queueID),
				zap.String("customer_id", c.ID),
				zap.Error(err))
		}
	}
	return nil
}
