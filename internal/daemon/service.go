package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/alertd/internal/config"
	"github.com/jmylchreest/alertd/internal/display"
	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// Version is set at build time.
var Version = "dev"

var (
	// ErrStopped is returned by calls made while the service is not running.
	ErrStopped = errors.New("service is not running")
	// ErrRateLimited is returned when a request exceeds the configured submission rate.
	ErrRateLimited = errors.New("request rate limit exceeded")
)

// drainGrace is added to the exit animation length when waiting for
// notifications to close during Stop.
const drainGrace = 500 * time.Millisecond

// Options configures a Service.
type Options struct {
	// ConfigPath is watched for changes when Watch is set.
	ConfigPath string
	Watch      bool

	// Renderer draws notifications. Nil runs headless.
	Renderer display.Renderer

	// Hooks are called after the service's own bookkeeping, on the event loop.
	Hooks display.Hooks

	Logger *slog.Logger
}

// Snapshot is a point-in-time view of the service.
type Snapshot struct {
	Live          []display.Entry `yaml:"live"`
	Queued        []display.Entry `yaml:"queued"`
	MaxConcurrent int             `yaml:"max_concurrent"`
	Stats         display.Stats   `yaml:"stats"`
	Pool          pool.Stats      `yaml:"pool"`
	Kinds         []model.Kind    `yaml:"kinds"`
	Uptime        time.Duration   `yaml:"uptime"`
}

// Service is the goroutine-safe front of the display manager.
// Every call is marshalled onto a single event loop.
type Service struct {
	mu     sync.Mutex
	logger *slog.Logger
	opts   Options
	config *config.Config

	loop    *eventloop.Loop
	pool    *pool.Pool
	anim    *display.TimedAnimator
	manager *display.Manager
	tracker *Tracker

	limiter *rate.Limiter // Nil when limiting is disabled

	cron      *cron.Cron
	cleanupID cron.EntryID

	watcher  *config.Watcher
	notifier *InternalNotifier

	startedAt time.Time
	running   bool
}

// New creates a Service. It does nothing until Start is called.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		logger:   logger,
		opts:     opts,
		config:   cfg.Clone(),
		loop:     eventloop.New(logger),
		pool:     pool.New(cfg.Pool.MaxSize, logger),
		tracker:  NewTracker(DefaultHistorySize),
		notifier: NewInternalNotifier(logger),
	}

	display.RegisterKinds(s.pool)
	s.anim = display.NewTimedAnimator(s.loop, cfg.Animation.Entrance.Duration(), cfg.Animation.Exit.Duration(), opts.Renderer)
	s.manager = display.NewManager(s.loop, s.pool, s.anim, cfg, logger)
	s.manager.SetHooks(s.hooks())
	s.limiter = newLimiter(cfg.Rate)

	s.notifier.SetEnabled(cfg.Internal.Enabled)
	s.notifier.SetMinInterval(cfg.Internal.MinInterval.Duration())
	s.notifier.SetNotifyHandler(func(req model.Request) error {
		_, _, err := s.submit(context.Background(), req)
		return err
	})

	return s, nil
}

func newLimiter(cfg config.RateConfig) *rate.Limiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
}

// hooks keeps the tracker in step with the manager, then calls the caller's hooks.
func (s *Service) hooks() display.Hooks {
	user := s.opts.Hooks
	return display.Hooks{
		OnAdmitted: func(id model.ID, req model.Request) {
			s.tracker.Admitted(id, req)
			if user.OnAdmitted != nil {
				user.OnAdmitted(id, req)
			}
		},
		OnQueued: func(id model.ID, req model.Request) {
			s.tracker.Queued(id, req)
			if user.OnQueued != nil {
				user.OnQueued(id, req)
			}
		},
		OnClosed: func(id model.ID, reason model.CloseReason) {
			s.tracker.Closed(id, reason)
			if user.OnClosed != nil {
				user.OnClosed(id, reason)
			}
		},
	}
}

// Start runs the event loop, the cleanup schedule and, if configured, the config watcher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event loop: %w", err)
	}

	s.cron = cron.New()
	if err := s.scheduleCleanupLocked(s.config.Pool.CleanupSchedule); err != nil {
		s.loop.Stop()
		return err
	}
	s.cron.Start()

	if s.opts.Watch && s.opts.ConfigPath != "" {
		s.watcher = config.NewWatcher(s.opts.ConfigPath, s.logger)
		s.watcher.SetReloadCallback(func(cfg *config.Config) {
			if err := s.ApplyConfig(cfg); err != nil {
				s.logger.Warn("failed to apply reloaded config", "error", err)
				return
			}
			s.notifier.NotifyConfigReloaded()
		})
		s.watcher.SetErrorCallback(func(err error) {
			s.notifier.NotifyConfigError(err)
		})
		if err := s.watcher.Start(ctx, s.config.Clone()); err != nil {
			s.logger.Warn("config hot-reload disabled", "error", err)
			s.watcher = nil
		}
	}

	s.startedAt = time.Now()
	s.running = true

	s.logger.Info("alertd service started",
		"max_concurrent", s.config.Admission.MaxConcurrent,
		"preemption_threshold", s.config.Admission.PreemptionThreshold,
	)
	return nil
}

// scheduleCleanupLocked replaces the pool cleanup job. An empty spec disables it.
func (s *Service) scheduleCleanupLocked(spec string) error {
	if s.cleanupID != 0 {
		s.cron.Remove(s.cleanupID)
		s.cleanupID = 0
	}
	if spec == "" {
		return nil
	}

	id, err := s.cron.AddFunc(spec, s.cleanupPool)
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	s.cleanupID = id
	return nil
}

func (s *Service) cleanupPool() {
	s.loop.Post(func() {
		if dropped := s.manager.CleanupPool(); dropped > 0 {
			s.logger.Debug("pool cleanup", "dropped", dropped)
		}
	})
}

// Stop closes every notification, waits briefly for exit transitions to
// finish, and shuts the event loop down.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	watcher := s.watcher
	s.watcher = nil
	c := s.cron
	s.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	<-c.Stop().Done()

	_, exit := s.anim.Durations()
	ctx, cancel := context.WithTimeout(context.Background(), exit+drainGrace)
	defer cancel()

	if err := s.loop.Do(ctx, func() { s.manager.CloseAll() }); err == nil {
		s.waitDrained(ctx)
	}
	_ = s.loop.Do(context.Background(), func() { s.pool.Drain() })

	s.loop.Stop()
	s.logger.Info("alertd service stopped")
}

// waitDrained polls until nothing is live or ctx expires.
func (s *Service) waitDrained(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		var active int
		if err := s.loop.Do(ctx, func() { active = s.manager.ActiveCount() }); err != nil {
			s.logger.Debug("stopped waiting for notifications to close", "error", err)
			return
		}
		if active == 0 {
			return
		}

		select {
		case <-ctx.Done():
			s.logger.Warn("notifications still closing at shutdown", "active", active)
			return
		case <-ticker.C:
		}
	}
}

// IsRunning reports whether the service is running.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Request submits a notification.
func (s *Service) Request(ctx context.Context, req model.Request) (model.ID, model.Outcome, error) {
	if !s.IsRunning() {
		return "", model.OutcomeQueued, ErrStopped
	}
	if !s.allow() {
		s.logger.Debug("request rate limited", "priority", req.Priority, "kind", req.Kind)
		return "", model.OutcomeQueued, ErrRateLimited
	}
	return s.submit(ctx, req)
}

func (s *Service) allow() bool {
	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	return limiter == nil || limiter.Allow()
}

func (s *Service) submit(ctx context.Context, req model.Request) (model.ID, model.Outcome, error) {
	var (
		id      model.ID
		outcome model.Outcome
		err     error
	)
	if doErr := s.do(ctx, func() {
		id, outcome, err = s.manager.Submit(req)
	}); doErr != nil {
		return "", model.OutcomeQueued, doErr
	}
	return id, outcome, err
}

// do runs fn on the event loop and waits for it.
func (s *Service) do(ctx context.Context, fn func()) error {
	err := s.loop.Do(ctx, fn)
	if errors.Is(err, eventloop.ErrStopped) {
		return ErrStopped
	}
	return err
}

// Close closes a live notification or cancels a queued one.
// It reports whether anything changed; unknown and closed ids are not errors.
func (s *Service) Close(ctx context.Context, id model.ID) (bool, error) {
	var changed bool
	err := s.do(ctx, func() { changed = s.manager.Close(id) })
	return changed, err
}

// CloseAll closes every notification and empties the queue.
func (s *Service) CloseAll(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func() { n = s.manager.CloseAll() })
	return n, err
}

// EntranceComplete reports that an external collaborator finished an entrance transition.
func (s *Service) EntranceComplete(ctx context.Context, id model.ID) error {
	return s.do(ctx, func() { s.manager.NotifyEntranceComplete(id) })
}

// ExitComplete reports that an external collaborator finished an exit transition.
func (s *Service) ExitComplete(ctx context.Context, id model.ID) error {
	return s.do(ctx, func() { s.manager.NotifyExitComplete(id) })
}

// Pause freezes a notification's timeout.
func (s *Service) Pause(ctx context.Context, id model.ID) (bool, error) {
	var changed bool
	err := s.do(ctx, func() { changed = s.manager.Pause(id) })
	return changed, err
}

// Resume restarts a paused notification's timeout.
func (s *Service) Resume(ctx context.Context, id model.ID) (bool, error) {
	var changed bool
	err := s.do(ctx, func() { changed = s.manager.Resume(id) })
	return changed, err
}

// Status returns the state of a live or queued notification.
func (s *Service) Status(ctx context.Context, id model.ID) (model.State, bool, error) {
	var (
		state model.State
		ok    bool
	)
	err := s.do(ctx, func() { state, ok = s.manager.Status(id) })
	return state, ok, err
}

// Lookup returns the tracked state of id, including recently finished notifications.
func (s *Service) Lookup(id model.ID) (DisplayState, bool) {
	return s.tracker.Get(id)
}

// Recent returns up to n recently finished notifications, newest first.
func (s *Service) Recent(n int) []DisplayState {
	return s.tracker.Recent(n)
}

// Snapshot returns the live set, the queue and the counters.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		for _, entry := range s.manager.Entries() {
			if entry.State == model.StateQueued {
				snap.Queued = append(snap.Queued, entry)
			} else {
				snap.Live = append(snap.Live, entry)
			}
		}
		snap.Stats = s.manager.Stats()
		snap.Pool = s.manager.PoolStats()
		snap.Kinds = s.pool.Kinds()
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	snap.MaxConcurrent = s.config.Admission.MaxConcurrent
	snap.Uptime = time.Since(s.startedAt)
	s.mu.Unlock()
	return snap, nil
}

// Config returns a copy of the configuration in effect.
func (s *Service) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

// Notifier returns the internal notice sender.
func (s *Service) Notifier() *InternalNotifier {
	return s.notifier
}

// ApplyConfig switches to a new configuration without dropping notifications.
func (s *Service) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = cfg.Clone()

	s.mu.Lock()
	if s.running && cfg.Pool.CleanupSchedule != s.config.Pool.CleanupSchedule {
		if err := s.scheduleCleanupLocked(cfg.Pool.CleanupSchedule); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if s.limiter != nil && cfg.Rate.PerSecond > 0 {
		s.limiter.SetLimit(rate.Limit(cfg.Rate.PerSecond))
		s.limiter.SetBurst(cfg.Rate.Burst)
	} else {
		s.limiter = newLimiter(cfg.Rate)
	}
	s.config = cfg
	running := s.running
	s.mu.Unlock()

	s.anim.SetDurations(cfg.Animation.Entrance.Duration(), cfg.Animation.Exit.Duration())
	s.notifier.SetEnabled(cfg.Internal.Enabled)
	s.notifier.SetMinInterval(cfg.Internal.MinInterval.Duration())

	apply := func() { s.manager.UpdateConfig(cfg) }
	if !running {
		// The loop is not running, so nothing else touches the manager
		apply()
	} else if err := s.do(context.Background(), apply); err != nil {
		return err
	}

	s.logger.Info("configuration applied",
		"max_concurrent", cfg.Admission.MaxConcurrent,
		"preemption_threshold", cfg.Admission.PreemptionThreshold,
		"pool_max_size", cfg.Pool.MaxSize,
	)
	return nil
}
