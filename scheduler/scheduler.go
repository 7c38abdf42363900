package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Handler runs one schedule's message against the orchestrator and
// returns any error. Handler errors are logged by the Scheduler and never
// propagate out of a firing: the schedule stays active.
type Handler func(ctx context.Context, cfg Config) error

// job is the runtime-only companion to a persisted Config: its cron
// registration or one-shot timer handle, and the overlap guard.
type job struct {
	cfg     Config
	entryID cron.EntryID
	hasCron bool
	timer   *time.Timer

	mu       sync.Mutex
	inFlight bool
}

// Scheduler is a single scheduler per process, configured with a
// timezone and a persistence path. Persistence writes are serialized
// under mu alongside schedule-map mutations so the on-disk document
// never sees a torn write interleaved with a concurrent schedule edit.
type Scheduler struct {
	cronRunner *cron.Cron
	loc        *time.Location
	path       string
	handler    Handler
	log        *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New constructs a Scheduler. It does not load or start jobs; call Load
// then Start.
func New(loc *time.Location, path string, handler Handler, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cronRunner: cron.New(cron.WithLocation(loc)),
		loc:        loc,
		path:       path,
		handler:    handler,
		log:        log.With("component", "scheduler"),
		jobs:       make(map[string]*job),
	}
}

// Load reads the persisted document and wires every schedule: one-time
// schedules whose runAt has already passed are dropped; recurring
// schedules with invalid cron are kept in the list but not armed, with a
// warning; the rest are armed.
func (s *Scheduler) Load() error {
	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range doc.Schedules {
		if cfg.Kind == KindOneTime && cfg.RunAt != nil && cfg.RunAt.Before(now) {
			s.log.Info("dropping past-due one-shot schedule on load", "id", cfg.ID, "runAt", cfg.RunAt)
			continue
		}
		j := &job{cfg: cfg}
		if cfg.Active {
			if err := s.armLocked(j); err != nil {
				s.log.Warn("skipping schedule with invalid configuration", "id", cfg.ID, "error", err)
			}
		}
		s.jobs[cfg.ID] = j
	}
	return nil
}

// Start begins the cron runner; it does not block.
func (s *Scheduler) Start() {
	s.cronRunner.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron runner and all one-shot timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
	}
	s.mu.Unlock()
	ctx := s.cronRunner.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// armLocked registers the runtime handle for j per its kind. Caller must
// hold mu.
func (s *Scheduler) armLocked(j *job) error {
	switch j.cfg.Kind {
	case KindRecurring:
		if j.cfg.CronExpression == "" {
			return fmt.Errorf("recurring schedule requires cronExpression")
		}
		id, err := s.cronRunner.AddFunc(j.cfg.CronExpression, s.fireFunc(j))
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", j.cfg.CronExpression, err)
		}
		j.entryID = id
		j.hasCron = true
	case KindOneTime:
		if j.cfg.RunAt == nil {
			return fmt.Errorf("one-time schedule requires runAt")
		}
		delay := time.Until(*j.cfg.RunAt)
		if delay < 0 {
			delay = 0
		}
		j.timer = time.AfterFunc(delay, func() { s.fireOnce(j) })
	default:
		return fmt.Errorf("unknown schedule kind %q", j.cfg.Kind)
	}
	return nil
}

func (s *Scheduler) disarmLocked(j *job) {
	if j.hasCron {
		s.cronRunner.Remove(j.entryID)
		j.hasCron = false
	}
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
}

func (s *Scheduler) fireFunc(j *job) func() {
	return func() { s.fire(j) }
}

func (s *Scheduler) fireOnce(j *job) {
	s.fire(j)
	s.mu.Lock()
	delete(s.jobs, j.cfg.ID)
	s.persistLocked()
	s.mu.Unlock()
}

// fire skips an inactive schedule or one already in flight (logged),
// else marks in-flight, stamps lastRun, persists, runs the handler, and
// always clears in-flight afterward.
func (s *Scheduler) fire(j *job) {
	if !j.cfg.Active {
		return
	}
	j.mu.Lock()
	if j.inFlight {
		j.mu.Unlock()
		s.log.Warn("schedule fired while previous run still in flight, skipping", "id", j.cfg.ID)
		return
	}
	j.inFlight = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.inFlight = false
		j.mu.Unlock()
	}()

	now := time.Now()
	s.mu.Lock()
	j.cfg.LastRun = &now
	s.persistLocked()
	cfg := j.cfg
	s.mu.Unlock()

	s.log.Info("schedule firing", "id", cfg.ID, "type", cfg.Type)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := s.handler(ctx, cfg); err != nil {
		s.log.Warn("schedule handler failed", "id", cfg.ID, "error", err)
	}
}

// Create validates req, assigns an id, inserts, arms if active, and
// persists synchronously.
func (s *Scheduler) Create(req CreateRequest) (Config, error) {
	kind := KindRecurring
	if req.OneTime {
		kind = KindOneTime
	}

	now := time.Now()
	if kind == KindOneTime {
		if req.RunAt == nil || !req.RunAt.After(now) {
			return Config{}, fmt.Errorf("one-time schedule requires a runAt strictly in the future")
		}
	} else if req.CronExpression == "" {
		return Config{}, fmt.Errorf("recurring schedule requires a cronExpression")
	} else if _, err := cron.ParseStandard(req.CronExpression); err != nil {
		return Config{}, fmt.Errorf("invalid cron expression %q: %w", req.CronExpression, err)
	}

	typ := req.Type
	if typ == "" {
		typ = TypeStandard
	}

	cfg := Config{
		ID:             newScheduleID(),
		Message:        req.Message,
		Description:    req.Description,
		Kind:           kind,
		CronExpression: req.CronExpression,
		RunAt:          req.RunAt,
		Type:           typ,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		Active:         true,
	}

	j := &job{cfg: cfg}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.armLocked(j); err != nil {
		return Config{}, err
	}
	s.jobs[cfg.ID] = j
	s.persistLocked()
	return cfg, nil
}

// Update mutates the configuration in place, reconfiguring runtime
// handles before persisting.
func (s *Scheduler) Update(id string, patch UpdatePatch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Config{}, ErrNotFound
	}

	s.disarmLocked(j)

	if patch.Message != nil {
		j.cfg.Message = *patch.Message
	}
	if patch.Description != nil {
		j.cfg.Description = *patch.Description
	}
	if patch.CronExpression != nil {
		j.cfg.CronExpression = *patch.CronExpression
	}
	if patch.RunAt != nil {
		j.cfg.RunAt = patch.RunAt
	}
	if patch.Metadata != nil {
		j.cfg.Metadata = *patch.Metadata
	}
	if patch.Active != nil {
		j.cfg.Active = *patch.Active
	}

	if j.cfg.Active {
		if err := s.armLocked(j); err != nil {
			return Config{}, err
		}
	}

	s.persistLocked()
	return j.cfg, nil
}

// Remove stops handles, removes the job, and persists.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	s.disarmLocked(j)
	delete(s.jobs, id)
	s.persistLocked()
	return nil
}

// Get returns a schedule by id.
func (s *Scheduler) Get(id string) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return j.cfg, nil
}

// List returns a snapshot of all schedules.
func (s *Scheduler) List() []Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Config, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.cfg)
	}
	return out
}

// persistLocked writes the whole document to disk. Caller must hold mu.
// Failures are logged, never returned: the in-memory state stays
// authoritative for the current process.
func (s *Scheduler) persistLocked() {
	doc := document{Schedules: make([]Config, 0, len(s.jobs))}
	for _, j := range s.jobs {
		doc.Schedules = append(doc.Schedules, j.cfg)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Warn("persist: mkdir failed", "error", err)
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Warn("persist: marshal failed", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Warn("persist: write failed", "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Warn("persist: rename failed", "error", err)
	}
}

func (s *Scheduler) readDocument() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return doc, nil
}

func newScheduleID() string {
	return "schedule_" + uuid.New().String()
}
