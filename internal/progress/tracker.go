package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// persistEvery bounds how often intermediate steps are written to sync_runs
const persistEvery = time.Second

// Tracker starts durable runs and publishes their progress
type Tracker struct {
	repo   repository.SyncRunRepository
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker. logger should include the activity log core.
func NewTracker(repo repository.SyncRunRepository, pub Publisher, logger *zap.Logger) *Tracker {
	if pub == nil {
		pub = Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{repo: repo, pub: pub, logger: logger, now: time.Now}
}

// Run is one tracked job execution
type Run struct {
	tracker   *Tracker
	mu        sync.Mutex
	row       model.SyncRun
	lastSaved time.Time
	logger    *zap.Logger
}

// Start records a running job. An empty sessionID gets a generated one.
func (t *Tracker) Start(ctx context.Context, kind, sessionID, actor string, params interface{}) (*Run, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := t.now()
	row := model.SyncRun{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      kind,
		Status:    model.RunRunning,
		Actor:     actor,
		Message:   "started",
		StartedAt: now,
		UpdatedAt: now,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode run params: %w", err)
		}
		row.Params = datatypes.JSON(raw)
	}
	if err := t.repo.Create(ctx, &row); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	run := &Run{
		tracker:   t,
		row:       row,
		lastSaved: now,
		logger:    t.logger.With(zap.String("kind", kind), zap.String("session", sessionID)),
	}
	run.logger.Info("Job started", zap.String("actor", actor))
	run.publish(nil)
	return run, nil
}

// SessionID returns the id clients subscribe with
func (r *Run) SessionID() string {
	return r.row.SessionID
}

// ID returns the run's row id
func (r *Run) ID() uuid.UUID {
	return r.row.ID
}

// Step reports progress. Rows are persisted at most once a second and on the final step.
func (r *Run) Step(ctx context.Context, message string, current, total int) {
	r.mu.Lock()
	r.row.Message = message
	r.row.Current = current
	r.row.Total = total
	now := r.tracker.now()
	r.row.UpdatedAt = now
	persist := now.Sub(r.lastSaved) >= persistEvery || (total > 0 && current >= total)
	if persist {
		r.lastSaved = now
	}
	row := r.row
	r.mu.Unlock()

	r.logger.Info(message, zap.Int("current", current), zap.Int("total", total))
	if persist {
		if err := r.tracker.repo.Save(ctx, &row); err != nil {
			r.logger.Warn("Failed to persist run progress", zap.Error(err))
		}
	}
	r.publish(nil)
}

// Logf writes a message to the activity log and listeners without changing counters
func (r *Run) Logf(format string, args ...interface{}) {
	r.mu.Lock()
	r.row.Message = fmt.Sprintf(format, args...)
	msg := r.row.Message
	r.mu.Unlock()

	r.logger.Info(msg)
	r.publish(nil)
}

// Errorf logs a per-record failure at ERROR level without failing the run
func (r *Run) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Error(msg)

	r.mu.Lock()
	r.row.Message = msg
	r.mu.Unlock()
	r.publish(nil)
}

// Finish marks the run successful or failed and stores results
func (r *Run) Finish(ctx context.Context, results interface{}, runErr error) error {
	r.mu.Lock()
	now := r.tracker.now()
	r.row.FinishedAt = &now
	r.row.UpdatedAt = now
	if results != nil {
		if raw, err := json.Marshal(results); err == nil {
			r.row.Results = datatypes.JSON(raw)
		}
	}
	if runErr != nil {
		r.row.Status = model.RunFailed
		r.row.Error = runErr.Error()
		r.row.Message = "failed"
	} else {
		r.row.Status = model.RunSuccess
		r.row.Message = "completed"
	}
	row := r.row
	r.mu.Unlock()

	if runErr != nil {
		r.logger.Error("Job failed", zap.Error(runErr), zap.Duration("elapsed", now.Sub(row.StartedAt)))
	} else {
		r.logger.Info("Job completed", zap.Duration("elapsed", now.Sub(row.StartedAt)))
	}
	r.publish(results)

	if err := r.tracker.repo.Save(ctx, &row); err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the run row
func (r *Run) Snapshot() model.SyncRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.row
}

func (r *Run) publish(results interface{}) {
	r.mu.Lock()
	evt := Event{
		SessionID: r.row.SessionID,
		RunID:     r.row.ID,
		Kind:      r.row.Kind,
		Status:    r.row.Status,
		Message:   r.row.Message,
		Current:   r.row.Current,
		Total:     r.row.Total,
		Results:   results,
		Error:     r.row.Error,
		At:        r.row.UpdatedAt,
	}
	r.mu.Unlock()
	r.tracker.pub.Publish(evt)
}
