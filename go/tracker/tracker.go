package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

type PageFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// SnapshotStore persists the last snapshot. Load returns (nil, nil) when
// nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) (crawler.Snapshot, error)
	Save(ctx context.Context, snapshot crawler.Snapshot) error
}

// Notifier is told about apartments that became available. It is only called
// with a non-empty delta.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, delta crawler.Snapshot) error
}

// Observation is everything seen in one cycle, handed to history recorders.
type Observation struct {
	CycleID    string
	ObservedAt time.Time
	Snapshot   crawler.Snapshot
}

type Recorder interface {
	Name() string
	Record(ctx context.Context, obs Observation) error
}

type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageState Stage = "state"
)

// CycleError aborts a cycle. Persisted state is untouched when Stage is
// StageFetch or StageParse.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *CycleError) Unwrap() error { return e.Err }

// Report summarises one check.
type Report struct {
	CycleID        string            `json:"cycle_id"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Total          int               `json:"total"`
	Free           int               `json:"free"`
	Reserved       int               `json:"reserved"`
	Occupied       int               `json:"occupied"`
	Unknown        int               `json:"unknown"`
	FirstRun       bool              `json:"first_run"`
	Persisted      bool              `json:"persisted"`
	NewlyAvailable []string          `json:"newly_available"`
	NotifyErrors   map[string]string `json:"notify_errors,omitempty"`
	RecordErrors   map[string]string `json:"record_errors,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type Option func(*Tracker)

func WithNotifiers(notifiers ...Notifier) Option {
	return func(t *Tracker) { t.notifiers = append(t.notifiers, notifiers...) }
}

func WithRecorders(recorders ...Recorder) Option {
	return func(t *Tracker) { t.recorders = append(t.recorders, recorders...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tracker runs check cycles: fetch, parse, diff, notify, persist.
type Tracker struct {
	fetcher   PageFetcher
	store     SnapshotStore
	notifiers []Notifier
	recorders []Recorder
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu   sync.Mutex
	last *Report
}

func New(fetcher PageFetcher, store SnapshotStore, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher: fetcher,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LastReport returns the report of the most recent cycle.
func (t *Tracker) LastReport() (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Report{}, false
	}
	return *t.last, true
}

// Check runs one cycle. The returned report is never nil.
func (t *Tracker) Check(ctx context.Context) (*Report, error) {
	report := &Report{CycleID: t.newID(), StartedAt: t.now()}
	logger := t.logger.With("cycle", report.CycleID)

	err := t.check(ctx, logger, report)
	report.FinishedAt = t.now()
	if err != nil {
		report.Error = err.Error()
		logger.Error("check aborted", "error", err)
	}

	t.mu.Lock()
	t.last = report
	t.mu.Unlock()
	return report, err
}

func (t *Tracker) check(ctx context.Context, logger *slog.Logger, report *Report) error {
	logger.Info("checking apartment availability")

	raw, err := t.fetcher.Fetch(ctx)
	if err != nil {
		return &CycleError{Stage: StageFetch, Err: err}
	}

	current, err := crawler.ParsePage(raw)
	if err != nil {
		return &CycleError{Stage: StageParse, Err: err}
	}

	t.summarize(logger, report, current)
	t.record(ctx, logger, report, current)

	if len(current) == 0 {
		// Keep the previous snapshot: an empty parse means the layout changed.
		logger.Warn("no apartments found, page structure may have changed; state left untouched")
		return nil
	}

	previous, err := t.store.Load(ctx)
	if err != nil {
		return &CycleError{Stage: StageState, Err: oops.Wrapf(err, "load previous snapshot")}
	}

	if previous == nil {
		report.FirstRun = true
		logger.Info("first run, saving initial state without notification")
		return t.persist(ctx, report, current)
	}

	delta := Diff(previous, current)
	report.NewlyAvailable = delta.IDs()
	if len(delta) > 0 {
		logger.Info("new availability detected", "count", len(delta))
		for _, apt := range delta.WithStatus(crawler.StatusFree) {
			logger.Info("newly available", "apartment", apt.Name, "type", apt.Type, "total", apt.Total)
		}
		for _, apt := range delta.WithStatus(crawler.StatusUnknown) {
			logger.Info("possibly available", "apartment", apt.Name, "type", apt.Type, "rent", apt.ColdRent)
		}
		t.notify(ctx, logger, report, delta)
	} else {
		logger.Info("no new availability")
	}

	return t.persist(ctx, report, current)
}

func (t *Tracker) persist(ctx context.Context, report *Report, current crawler.Snapshot) error {
	if err := t.store.Save(ctx, current); err != nil {
		return &CycleError{Stage: StageState, Err: oops.Wrapf(err, "save snapshot")}
	}
	report.Persisted = true
	return nil
}

func (t *Tracker) notify(ctx context.Context, logger *slog.Logger, report *Report, delta crawler.Snapshot) {
	for _, n := range t.notifiers {
		if err := n.Notify(ctx, delta); err != nil {
			if report.NotifyErrors == nil {
				report.NotifyErrors = make(map[string]string)
			}
			report.NotifyErrors[n.Name()] = err.Error()
			logger.Error("notification failed", "notifier", n.Name(), "error", err)
			continue
		}
		logger.Info("notification sent", "notifier", n.Name(), "apartments", len(delta))
	}
}

func (t *Tracker) record(ctx context.Context, logger *slog.Logger, report *Report, current crawler.Snapshot) {
	if len(current) == 0 {
		return
	}
	obs := Observation{CycleID: report.CycleID, ObservedAt: report.StartedAt, Snapshot: current}
	for _, r := range t.recorders {
		if err := r.Record(ctx, obs); err != nil {
			if report.RecordErrors == nil {
				report.RecordErrors = make(map[string]string)
			}
			report.RecordErrors[r.Name()] = err.Error()
			logger.Error("history record failed", "recorder", r.Name(), "error", err)
		}
	}
}

func (t *Tracker) summarize(logger *slog.Logger, report *Report, current crawler.Snapshot) {
	counts := current.Counts()
	report.Total = len(current)
	report.Free = counts[crawler.StatusFree]
	report.Reserved = counts[crawler.StatusReserved]
	report.Occupied = counts[crawler.StatusOccupied]
	report.Unknown = counts[crawler.StatusUnknown]

	logger.Info("apartments found",
		"total", report.Total,
		"free", report.Free,
		"reserved", report.Reserved,
		"occupied", report.Occupied,
		"unknown", report.Unknown)

	for _, status := range []crawler.Status{crawler.StatusFree, crawler.StatusReserved} {
		apts := current.WithStatus(status)
		if len(apts) == 0 {
			logger.Info(fmt.Sprintf("no %s apartments right now", status))
			continue
		}
		for _, apt := range apts {
			logger.Info(fmt.Sprintf("%s apartment", status),
				"apartment", apt.Name, "type", apt.Type, "size", orNA(apt.Size), "total", orNA(apt.Total))
		}
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
