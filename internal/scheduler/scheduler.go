package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReloadInterval bounds how long a disabled/deleted binding can remain
// active, or a new/changed binding can remain unscheduled, per spec §4.12
// ("within one minute").
const ReloadInterval = time.Minute

// Binding is one cron-triggered task invocation target.
type Binding struct {
	ID         string
	TaskID     string
	TargetURL  string
	Parameters map[string]string
	Schedule   string
	Enabled    bool
}

// Source supplies the current set of bindings on every reload tick. A
// database- or file-backed implementation reads from storage; tests can
// supply a closure-backed implementation.
type Source interface {
	ListBindings() ([]Binding, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]Binding, error)

func (f SourceFunc) ListBindings() ([]Binding, error) { return f() }

// TriggerFunc fires one scheduled binding, returning once the resulting
// job has reached a terminal or non-terminal-but-settled status.
type TriggerFunc func(ctx context.Context, b Binding)

type trackedBinding struct {
	binding  Binding
	entryID  cron.EntryID
	lastRun  *time.Time
	nextRun  *time.Time
}

// Scheduler reloads Binding definitions on a fixed interval, starting and
// stopping per-binding cron entries so that enabled/disabled state and
// schedule changes take effect within one reload interval.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	source  Source
	trigger TriggerFunc
	active  map[string]*trackedBinding

	reloadInterval time.Duration
	now            func() time.Time

	stop chan struct{}
}

// New wires a Scheduler from a binding Source and a trigger callback.
func New(source Source, trigger TriggerFunc) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		source:         source,
		trigger:        trigger,
		active:         make(map[string]*trackedBinding),
		reloadInterval: ReloadInterval,
		now:            time.Now,
		stop:           make(chan struct{}),
	}
}

// Start begins the cron clock and the reload loop. Returns once the first
// reload has completed so callers observe a populated schedule immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.reload(ctx)

	go func() {
		ticker := time.NewTicker(s.reloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.reload(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the reload loop and the underlying cron clock.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.cron.Stop().Done()
}

// reload diffs the current Source snapshot against active entries: new or
// enabled bindings are scheduled, disabled/removed/changed-schedule
// bindings are unscheduled (and rescheduled, for a changed schedule).
func (s *Scheduler) reload(ctx context.Context) {
	bindings, err := s.source.ListBindings()
	if err != nil {
		obslog.Get(obslog.CategoryScheduler).Warn("binding reload failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		seen[b.ID] = true
		existing, tracked := s.active[b.ID]

		if !b.Enabled {
			if tracked {
				s.removeLocked(b.ID)
			}
			continue
		}

		if tracked && existing.binding.Schedule == b.Schedule {
			existing.binding = b
			continue
		}
		if tracked {
			s.removeLocked(b.ID)
		}
		s.addLocked(ctx, b)
	}

	for id := range s.active {
		if !seen[id] {
			s.removeLocked(id)
		}
	}
}

func (s *Scheduler) addLocked(ctx context.Context, b Binding) {
	entry := &trackedBinding{binding: b}
	id, err := s.cron.AddFunc(b.Schedule, func() {
		s.fire(ctx, b.ID)
	})
	if err != nil {
		obslog.Get(obslog.CategoryScheduler).Warn("invalid binding schedule",
			zap.String("bindingId", b.ID), zap.String("schedule", b.Schedule), zap.Error(err))
		return
	}
	entry.entryID = id
	next := s.cron.Entry(id).Schedule.Next(s.now())
	entry.nextRun = &next
	s.active[b.ID] = entry
}

func (s *Scheduler) removeLocked(id string) {
	if tracked, ok := s.active[id]; ok {
		s.cron.Remove(tracked.entryID)
		delete(s.active, id)
	}
}

// fire runs one binding's trigger: lastRun is stamped before execution,
// nextRun is refreshed after completion regardless of outcome (spec
// §4.12).
func (s *Scheduler) fire(ctx context.Context, bindingID string) {
	s.mu.Lock()
	tracked, ok := s.active[bindingID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.now()
	tracked.lastRun = &now
	binding := tracked.binding
	s.mu.Unlock()

	s.trigger(ctx, binding)

	s.mu.Lock()
	if tracked, ok := s.active[bindingID]; ok {
		next := s.cron.Entry(tracked.entryID).Schedule.Next(s.now())
		tracked.nextRun = &next
	}
	s.mu.Unlock()
}

// LastRun reports the last-fired time for a binding, if it has fired.
func (s *Scheduler) LastRun(bindingID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracked, ok := s.active[bindingID]
	if !ok || tracked.lastRun == nil {
		return time.Time{}, false
	}
	return *tracked.lastRun, true
}

// NextRun reports the next scheduled fire time for a binding.
func (s *Scheduler) NextRun(bindingID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracked, ok := s.active[bindingID]
	if !ok || tracked.nextRun == nil {
		return time.Time{}, false
	}
	return *tracked.nextRun, true
}

// IsActive reports whether a binding currently has a live cron entry.
func (s *Scheduler) IsActive(bindingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[bindingID]
	return ok
}
