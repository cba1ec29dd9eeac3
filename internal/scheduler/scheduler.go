// Package scheduler runs the periodic due-publication and metrics-collection jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contentplan-bot/internal/database"
	"contentplan-bot/internal/database/models"
	"contentplan-bot/internal/metrics"
	"contentplan-bot/internal/telemetry"
	"contentplan-bot/internal/workflow"

	sentry "github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job names used in logs and counters.
const (
	JobPublishDue     = "publish_due"
	JobCollectMetrics = "collect_metrics"
)

const defaultItemTimeout = 30 * time.Second

// PlanPublisher publishes a single plan through the workflow.
type PlanPublisher interface {
	PublishPlan(ctx context.Context, planID int64, immediate bool) (*models.Post, error)
}

// Deps holds the collaborators and timing of the scheduler.
type Deps struct {
	Store           database.Store
	Publisher       PlanPublisher
	Metrics         metrics.Provider
	Telemetry       *telemetry.Metrics // optional
	PublishInterval time.Duration
	MetricsInterval time.Duration
	MetricsDelay    time.Duration // minimum age of a post before its metrics are collected
	RunOnStart      bool
	ItemTimeout     time.Duration    // bound for one metrics fetch
	Now             func() time.Time // optional, defaults to time.Now
}

// RunResult summarizes one job run.
type RunResult struct {
	Job       string
	RunID     string
	Selected  int
	Succeeded int
	Failed    int
	Skipped   int // items another actor already handled
}

// Scheduler owns the two periodic jobs.
type Scheduler struct {
	store           database.Store
	publisher       PlanPublisher
	provider        metrics.Provider
	telemetry       *telemetry.Metrics
	publishInterval time.Duration
	metricsInterval time.Duration
	metricsDelay    time.Duration
	runOnStart      bool
	itemTimeout     time.Duration
	now             func() time.Time
}

// New validates the dependencies and creates a scheduler.
func New(deps Deps) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("plan publisher is required")
	}
	if deps.Metrics == nil {
		return nil, errors.New("metrics provider is required")
	}
	if deps.PublishInterval <= 0 || deps.MetricsInterval <= 0 {
		return nil, errors.New("job intervals must be positive")
	}
	if deps.ItemTimeout <= 0 {
		deps.ItemTimeout = defaultItemTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scheduler{
		store:           deps.Store,
		publisher:       deps.Publisher,
		provider:        deps.Metrics,
		telemetry:       deps.Telemetry,
		publishInterval: deps.PublishInterval,
		metricsInterval: deps.MetricsInterval,
		metricsDelay:    deps.MetricsDelay,
		runOnStart:      deps.RunOnStart,
		itemTimeout:     deps.ItemTimeout,
		now:             deps.Now,
	}, nil
}

// Run starts both jobs and blocks until ctx is cancelled.
// With RunOnStart each job runs once immediately, then every interval.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[Scheduler] Starting: publish every %v, metrics every %v (delay %v), run on start: %t",
		s.publishInterval, s.metricsInterval, s.metricsDelay, s.runOnStart)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(gctx, JobPublishDue, s.publishInterval, s.RunDuePublication)
		return nil
	})
	g.Go(func() error {
		s.loop(gctx, JobCollectMetrics, s.metricsInterval, s.RunMetricsCollection)
		return nil
	})
	err := g.Wait()
	log.Println("[Scheduler] Stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job string, interval time.Duration, run func(context.Context) (RunResult, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.safeRun(ctx, job, run)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeRun(ctx, job, run)
		}
	}
}

// safeRun keeps a panicking or failing run from stopping the loop.
func (s *Scheduler) safeRun(ctx context.Context, job string, run func(context.Context) (RunResult, error)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler:%s] Panic recovered: %v", job, r)
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()
	if _, err := run(ctx); err != nil {
		log.Printf("[Scheduler:%s] Run failed: %v", job, err)
		sentry.CaptureException(fmt.Errorf("%s run failed: %w", job, err))
	}
}

// RunDuePublication publishes every ready plan whose publication date has passed.
// One plan failing does not stop the others. The error covers only the selection.
func (s *Scheduler) RunDuePublication(ctx context.Context) (RunResult, error) {
	started := time.Now()
	res := RunResult{Job: JobPublishDue, RunID: uuid.NewString()}
	logPrefix := fmt.Sprintf("[Scheduler:publish run=%s]", res.RunID)

	now := s.now().UTC()
	plans, err := s.store.FindDuePlans(ctx, models.PlanStatusReadyToPublish, now)
	if err != nil {
		s.telemetry.ObserveJob(res.Job, time.Since(started), 0, 0, err)
		return res, fmt.Errorf("failed to select due plans: %w", err)
	}
	res.Selected = len(plans)
	if len(plans) > 0 {
		log.Printf("%s %d plan(s) due at %s", logPrefix, len(plans), now.Format(time.RFC3339))
	}

	for _, plan := range plans {
		if ctx.Err() != nil {
			break
		}
		post, err := s.publisher.PublishPlan(ctx, plan.ID, false)
		switch {
		case err == nil:
			res.Succeeded++
			log.Printf("%s Plan %d published as message %d", logPrefix, plan.ID, post.MessageID)
		case errors.Is(err, workflow.ErrInvalidState):
			// published or changed by someone else since the selection
			res.Skipped++
			log.Printf("%s Plan %d skipped: %v", logPrefix, plan.ID, err)
		default:
			res.Failed++
			log.Printf("%s Plan %d failed, left for the next run: %v", logPrefix, plan.ID, err)
			sentry.CaptureException(fmt.Errorf("%s plan %d: %w", logPrefix, plan.ID, err))
		}
	}

	s.telemetry.ObserveJob(res.Job, time.Since(started), res.Succeeded, res.Failed, nil)
	if res.Selected > 0 {
		log.Printf("%s Done: %d succeeded, %d failed, %d skipped", logPrefix, res.Succeeded, res.Failed, res.Skipped)
	}
	return res, nil
}

// RunMetricsCollection attaches metrics to posts older than the metrics delay that have none yet.
// A post is never collected twice.
func (s *Scheduler) RunMetricsCollection(ctx context.Context) (RunResult, error) {
	started := time.Now()
	res := RunResult{Job: JobCollectMetrics, RunID: uuid.NewString()}
	logPrefix := fmt.Sprintf("[Scheduler:metrics run=%s]", res.RunID)

	cutoff := s.now().UTC().Add(-s.metricsDelay)
	posts, err := s.store.FindPostsAwaitingMetrics(ctx, cutoff)
	if err != nil {
		s.telemetry.ObserveJob(res.Job, time.Since(started), 0, 0, err)
		return res, fmt.Errorf("failed to select posts awaiting metrics: %w", err)
	}
	res.Selected = len(posts)

	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}
		if err := s.collect(ctx, post); err != nil {
			if errors.Is(err, database.ErrConflict) {
				res.Skipped++
				continue
			}
			res.Failed++
			log.Printf("%s Post %d failed: %v", logPrefix, post.ID, err)
			sentry.CaptureException(fmt.Errorf("%s post %d: %w", logPrefix, post.ID, err))
			continue
		}
		res.Succeeded++
	}

	s.telemetry.ObserveJob(res.Job, time.Since(started), res.Succeeded, res.Failed, nil)
	log.Printf("%s Done: %d selected, %d collected, %d failed, %d skipped",
		logPrefix, res.Selected, res.Succeeded, res.Failed, res.Skipped)
	return res, nil
}

func (s *Scheduler) collect(ctx context.Context, post models.Post) error {
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	m, err := s.provider.Collect(itemCtx, post)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	return s.store.SetPostMetrics(itemCtx, post.ID, m)
}
