package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"backoffice/internal/middleware"
	"backoffice/internal/progress"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JobFunc is the body of a tracked job. Progress goes to the Reporter carried in ctx.
type JobFunc func(ctx context.Context) (interface{}, error)

// JobOptions controls how a tracked job is attached to the request
type JobOptions struct {
	SessionID string
	Async     bool
}

// JobRequest is the optional body of the job endpoints
type JobRequest struct {
	SessionID string `json:"session_id"`
	Async     bool   `json:"async"`
}

func (r JobRequest) options() JobOptions {
	return JobOptions{SessionID: r.SessionID, Async: r.Async}
}

// bindOptional binds a JSON body when one was sent. An empty body leaves req untouched.
func bindOptional(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// JobRunner executes jobs under a progress.Run, inline or detached from the request
type JobRunner struct {
	tracker *progress.Tracker
	baseCtx context.Context
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewJobRunner creates a runner. Detached jobs run under baseCtx and stop when it is cancelled.
func NewJobRunner(baseCtx context.Context, tracker *progress.Tracker, logger *zap.Logger) *JobRunner {
	return &JobRunner{tracker: tracker, baseCtx: baseCtx, logger: logger.Named("jobs")}
}

// Run starts a tracked job and writes the JobResult envelope.
// Async jobs answer 202 with the session id as soon as the run row exists.
func (j *JobRunner) Run(c *gin.Context, kind string, opts JobOptions, params interface{}, fn JobFunc) {
	run, err := j.tracker.Start(c.Request.Context(), kind, opts.SessionID, middleware.Actor(c), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.JobFailure(err))
		return
	}

	if opts.Async {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			_, _ = j.execute(j.baseCtx, run, fn)
		}()
		c.JSON(http.StatusAccepted, response.JobSuccess(gin.H{
			"session_id": run.SessionID(),
			"run_id":     run.ID(),
		}))
		return
	}

	results, err := j.execute(c.Request.Context(), run, fn)
	if err != nil {
		c.JSON(statusFor(err), response.JobFailure(err))
		return
	}
	c.JSON(http.StatusOK, response.JobSuccess(results))
}

// Wait blocks until every detached job has finished
func (j *JobRunner) Wait() {
	j.wg.Wait()
}

func (j *JobRunner) execute(ctx context.Context, run *progress.Run, fn JobFunc) (results interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			results = nil
		}
		if finishErr := run.Finish(context.WithoutCancel(ctx), results, err); finishErr != nil {
			j.logger.Warn("Failed to record job result", zap.String("session", run.SessionID()), zap.Error(finishErr))
		}
	}()
	return fn(service.WithReporter(ctx, run))
}
