package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agendafacil/internal/metrics"
	"agendafacil/internal/repositories"
	"agendafacil/internal/services"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	JobPendingSweep       = "pending-sweep"
	JobSubscriptionExpiry = "subscription-expiry"

	sweepConcurrency = 5
)

// SweepOptions configures the pending-payment sweep.
type SweepOptions struct {
	Interval   time.Duration
	PendingAge time.Duration
	BatchSize  int
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// JobScheduler runs the background reconciliation jobs
type JobScheduler struct {
	scheduler        gocron.Scheduler
	events           services.PaymentEventService
	orderRepo        repositories.OrderRepository
	subscriptionRepo repositories.SubscriptionRepository
	opts             SweepOptions
	now              func() time.Time
	logger           *zap.Logger
	jobJobs          map[string]gocron.Job
	mu               sync.RWMutex
}

// NewJobScheduler creates a new job scheduler with its jobs registered
func NewJobScheduler(events services.PaymentEventService, orderRepo repositories.OrderRepository,
	subscriptionRepo repositories.SubscriptionRepository, opts SweepOptions, logger *zap.Logger) (*JobScheduler, error) {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.PendingAge <= 0 {
		opts.PendingAge = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	js := &JobScheduler{
		scheduler:        scheduler,
		events:           events,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		opts:             opts,
		now:              time.Now,
		logger:           logger.Named("jobs"),
		jobJobs:          make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.opts.Interval),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = js.RunPendingSweep(ctx)
		}),
		gocron.WithName(JobPendingSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", JobPendingSweep, err)
	}
	js.jobJobs[JobPendingSweep] = sweepJob

	expiryJob, err := js.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = js.DeactivateExpiredSubscriptions(ctx)
		}),
		gocron.WithName(JobSubscriptionExpiry),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", JobSubscriptionExpiry, err)
	}
	js.jobJobs[JobSubscriptionExpiry] = expiryJob

	js.logger.Info("registered background jobs", zap.Int("count", len(js.jobJobs)))
	return nil
}

// RunPendingSweep re-drives order movements and subscription payments that
// stayed pending longer than the configured age.
func (js *JobScheduler) RunPendingSweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	before := js.now().Add(-js.opts.PendingAge)

	movements, err := js.orderRepo.ListStaleMovements(ctx, before, js.opts.BatchSize)
	if err != nil {
		metrics.SweepRuns.WithLabelValues(JobPendingSweep, "error").Inc()
		js.logger.Error("failed to list stale payment movements", zap.Error(err))
		return report, err
	}
	payments, err := js.subscriptionRepo.ListStalePayments(ctx, before, js.opts.BatchSize)
	if err != nil {
		metrics.SweepRuns.WithLabelValues(JobPendingSweep, "error").Inc()
		js.logger.Error("failed to list stale subscription payments", zap.Error(err))
		return report, err
	}

	ids := make([]string, 0, len(movements)+len(payments))
	for _, p := range payments {
		if p.MPPaymentID != "" {
			ids = append(ids, p.MPPaymentID)
		}
	}
	for _, m := range movements {
		if m.MPPaymentID != nil && *m.MPPaymentID != "" {
			ids = append(ids, *m.MPPaymentID)
		}
	}
	report.Scanned = len(ids)

	semaphore := make(chan struct{}, sweepConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		wg.Add(1)
		go func(externalID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcome, err := js.events.Reconcile(ctx, externalID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				js.logger.Warn("sweep could not reconcile payment", zap.String("external_id", externalID), zap.Error(err))
			case outcome.Applied:
				report.Applied++
			}
		}(id)
	}
	wg.Wait()

	metrics.SweepRuns.WithLabelValues(JobPendingSweep, "ok").Inc()
	js.logger.Info("pending sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("applied", report.Applied),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// DeactivateExpiredSubscriptions flips tenants whose window has ended.
func (js *JobScheduler) DeactivateExpiredSubscriptions(ctx context.Context) (int, error) {
	ids, err := js.subscriptionRepo.DeactivateExpired(ctx, js.now())
	if err != nil {
		metrics.SweepRuns.WithLabelValues(JobSubscriptionExpiry, "error").Inc()
		js.logger.Error("failed to deactivate expired subscriptions", zap.Error(err))
		return 0, err
	}
	for _, id := range ids {
		js.logger.Info("subscription expired", zap.String("tenant_id", id.String()))
	}
	metrics.SweepRuns.WithLabelValues(JobSubscriptionExpiry, "ok").Inc()
	return len(ids), nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobJobs)
	jobs := make([]map[string]interface{}, 0, len(js.jobJobs))

	for name, job := range js.jobJobs {
		entry := map[string]interface{}{"name": name}
		if last, err := job.LastRun(); err == nil && !last.IsZero() {
			entry["last_run"] = last
		}
		if next, err := job.NextRun(); err == nil && !next.IsZero() {
			entry["next_run"] = next
		}
		jobs = append(jobs, entry)
	}

	status["jobs"] = jobs
	return status
}
