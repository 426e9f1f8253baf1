package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/bubble"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/progress"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultLogLines = 200
	maxLogLines     = 2000
	maxIDListBytes  = 10 << 20
)

// SyncRequest is the body shared by the sync endpoints. Dates are YYYY-MM-DD or RFC3339.
type SyncRequest struct {
	DateFrom       string `json:"date_from" form:"date_from"`
	DateTo         string `json:"date_to" form:"date_to"`
	SyncFiles      bool   `json:"sync_files" form:"sync_files"`
	MergeEmptyOnly bool   `json:"merge_empty_only" form:"merge_empty_only"`
	Incremental    bool   `json:"incremental" form:"incremental"`
	SessionID      string `json:"session_id" form:"session_id"`
	Async          bool   `json:"async" form:"async"`
}

type SyncHandler struct {
	syncService  service.SyncService
	linkRepair   service.LinkRepairService
	fileService  service.FileMigrationService
	runRepo      repository.SyncRunRepository
	hub          *progress.Hub
	auth         *middleware.Auth
	jobs         *JobRunner
	activityFile string
	loc          *time.Location
}

func NewSyncHandler(
	syncService service.SyncService,
	linkRepair service.LinkRepairService,
	fileService service.FileMigrationService,
	runRepo repository.SyncRunRepository,
	hub *progress.Hub,
	auth *middleware.Auth,
	jobs *JobRunner,
	activityFile string,
	loc *time.Location,
) *SyncHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SyncHandler{
		syncService:  syncService,
		linkRepair:   linkRepair,
		fileService:  fileService,
		runRepo:      runRepo,
		hub:          hub,
		auth:         auth,
		jobs:         jobs,
		activityFile: activityFile,
		loc:          loc,
	}
}

func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup) {
	sync := router.Group("/api/sync")
	{
		sync.POST("/all", h.auth.RequireRole(jobRoles...), h.SyncAll)
		sync.POST("/entity/:entity", h.auth.RequireRole(jobRoles...), h.SyncEntity)
		sync.POST("/ids/:entity", h.auth.RequireRole(jobRoles...), h.SyncByIDs)
		sync.POST("/repair/invoice-seda", h.auth.RequireRole(jobRoles...), h.RepairInvoiceSeda)
		sync.POST("/repair/seda-customer", h.auth.RequireRole(jobRoles...), h.RepairSedaCustomer)
		sync.POST("/files/migrate", h.auth.RequireRole(jobRoles...), h.MigrateFiles)
		sync.POST("/files/fix-names", h.auth.RequireRole(jobRoles...), h.FixFilenames)

		sync.GET("/runs", h.auth.RequireRole(), h.ListRuns)
		sync.GET("/runs/:session", h.auth.RequireRole(), h.GetRun)
		sync.GET("/runs/:session/events", h.auth.RequireRole(), h.StreamRun)
		sync.GET("/logs", h.auth.RequireRole(), h.TailLogs)
	}
}

// options converts the request into service options
func (h *SyncHandler) options(req SyncRequest) (service.SyncOptions, error) {
	opts := service.SyncOptions{
		SyncFiles:      req.SyncFiles,
		MergeEmptyOnly: req.MergeEmptyOnly,
		Incremental:    req.Incremental,
	}
	var err error
	if opts.DateFrom, err = parseDateParam(req.DateFrom, h.loc, false); err != nil {
		return opts, fmt.Errorf("%w: date_from: %v", service.ErrInvalidInput, err)
	}
	if opts.DateTo, err = parseDateParam(req.DateTo, h.loc, true); err != nil {
		return opts, fmt.Errorf("%w: date_to: %v", service.ErrInvalidInput, err)
	}
	if opts.DateFrom != nil && opts.DateTo != nil && !opts.DateFrom.Before(*opts.DateTo) {
		return opts, fmt.Errorf("%w: date_from must be before date_to", service.ErrInvalidInput)
	}
	return opts, nil
}

// parseDateParam reads YYYY-MM-DD in loc or any timestamp bubble.ParseTime accepts.
// A bare date used as an upper bound covers the whole day.
func parseDateParam(raw string, loc *time.Location, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		if upper {
			d = d.AddDate(0, 0, 1)
		}
		return &d, nil
	}
	t, err := bubble.ParseTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *SyncHandler) bindSync(c *gin.Context) (SyncRequest, service.SyncOptions, bool) {
	var req SyncRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return req, service.SyncOptions{}, false
	}
	opts, err := h.options(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return req, opts, false
	}
	return req, opts, true
}

func jobOptions(req SyncRequest) JobOptions {
	return JobOptions{SessionID: req.SessionID, Async: req.Async}
}

// SyncAll mirrors every entity, then repairs links and optionally migrates files
// @Summary      Sync all entities
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      SyncRequest  false  "Sync options"
// @Success      200      {object}  response.JobResult{results=service.SyncAllResult}
// @Success      202      {object}  response.JobResult
// @Failure      400      {object}  response.JobResult
// @Failure      500      {object}  response.JobResult
// @Router       /api/sync/all [post]
func (h *SyncHandler) SyncAll(c *gin.Context) {
	req, opts, ok := h.bindSync(c)
	if !ok {
		return
	}
	h.jobs.Run(c, "sync_all", jobOptions(req), opts, func(ctx context.Context) (interface{}, error) {
		return h.syncService.SyncAll(ctx, opts)
	})
}

// SyncEntity mirrors one entity type
// @Summary      Sync one entity
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        entity   path      string       true   "Entity name"
// @Param        payload  body      SyncRequest  false  "Sync options"
// @Success      200      {object}  response.JobResult{results=service.EntitySyncResult}
// @Success      202      {object}  response.JobResult
// @Failure      400      {object}  response.JobResult
// @Router       /api/sync/entity/{entity} [post]
func (h *SyncHandler) SyncEntity(c *gin.Context) {
	entity := c.Param("entity")
	if _, err := service.LookupEntity(entity); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}
	req, opts, ok := h.bindSync(c)
	if !ok {
		return
	}
	h.jobs.Run(c, "sync_"+entity, jobOptions(req), opts, func(ctx context.Context) (interface{}, error) {
		return h.syncService.SyncEntity(ctx, entity, opts)
	})
}

// SyncByIDs refreshes the records listed in an uploaded id export
// @Summary      Sync by id list
// @Description  Accepts a multipart "file" (csv or json export) or a JSON body {"items": [{"id", "modified_date"}], ...options}
// @Tags         sync
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        entity  path      string  true   "Entity name"
// @Param        file    formData  file    false  "Id export"
// @Success      200     {object}  response.JobResult{results=service.SyncByIDsResult}
// @Success      202     {object}  response.JobResult
// @Failure      400     {object}  response.JobResult
// @Router       /api/sync/ids/{entity} [post]
func (h *SyncHandler) SyncByIDs(c *gin.Context) {
	entity := c.Param("entity")
	if _, err := service.LookupEntity(entity); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}

	req, stamps, err := h.readIDList(c)
	if err != nil {
		c.JSON(statusFor(err), response.JobFailure(err))
		return
	}
	opts, err := h.options(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}

	params := map[string]interface{}{"options": opts, "ids": len(stamps)}
	h.jobs.Run(c, "sync_ids_"+entity, jobOptions(req), params, func(ctx context.Context) (interface{}, error) {
		return h.syncService.SyncByIDs(ctx, entity, stamps, opts)
	})
}

func (h *SyncHandler) readIDList(c *gin.Context) (SyncRequest, []bubble.IDStamp, error) {
	var req SyncRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			return req, nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return req, nil, fmt.Errorf("%w: file is required", service.ErrInvalidInput)
		}
		f, err := fh.Open()
		if err != nil {
			return req, nil, err
		}
		defer f.Close()

		format := c.PostForm("format")
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
		}
		stamps, err := bubble.ParseIDList(io.LimitReader(f, maxIDListBytes), format)
		if err != nil {
			return req, nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		return req, stamps, nil
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIDListBytes))
	if err != nil {
		return req, nil, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	stamps, err := bubble.ParseIDList(bytes.NewReader(raw), "json")
	if err != nil {
		return req, nil, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return req, stamps, nil
}

// RepairInvoiceSeda restores invoice to SEDA links from the registrations side
// @Summary      Repair invoice SEDA links
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.SedaLinkResult}
// @Success      202      {object}  response.JobResult
// @Router       /api/sync/repair/invoice-seda [post]
func (h *SyncHandler) RepairInvoiceSeda(c *gin.Context) {
	h.runJob(c, "repair_invoice_seda", func(ctx context.Context) (interface{}, error) {
		return h.linkRepair.RestoreInvoiceSedaLinks(ctx)
	})
}

// RepairSedaCustomer copies the invoice customer onto registrations without one
// @Summary      Patch SEDA customers
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.CustomerPatchResult}
// @Success      202      {object}  response.JobResult
// @Router       /api/sync/repair/seda-customer [post]
func (h *SyncHandler) RepairSedaCustomer(c *gin.Context) {
	h.runJob(c, "repair_seda_customer", func(ctx context.Context) (interface{}, error) {
		return h.linkRepair.PatchSedaCustomers(ctx)
	})
}

// MigrateFiles downloads legacy attachments into the file store and rewrites their URLs
// @Summary      Migrate attachment files
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.FileJobResult}
// @Success      202      {object}  response.JobResult
// @Router       /api/sync/files/migrate [post]
func (h *SyncHandler) MigrateFiles(c *gin.Context) {
	h.runJob(c, "files_migrate", func(ctx context.Context) (interface{}, error) {
		return h.fileService.MigrateFiles(ctx)
	})
}

// FixFilenames renames stored files with unsafe names and rewrites their URLs
// @Summary      Fix attachment filenames
// @Tags         sync
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      JobRequest  false  "Session id and async flag"
// @Success      200      {object}  response.JobResult{results=service.FileJobResult}
// @Success      202      {object}  response.JobResult
// @Router       /api/sync/files/fix-names [post]
func (h *SyncHandler) FixFilenames(c *gin.Context) {
	h.runJob(c, "files_fix_names", func(ctx context.Context) (interface{}, error) {
		return h.fileService.FixFilenames(ctx)
	})
}

func (h *SyncHandler) runJob(c *gin.Context, kind string, fn JobFunc) {
	var req JobRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.JobFailure(err))
		return
	}
	h.jobs.Run(c, kind, req.options(), req, fn)
}

// ListRuns returns recorded job runs, newest first
// @Summary      List job runs
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Param        kind   query     string  false  "Filter by job kind"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	p := pagination.Parse(c)
	runs, total, err := h.runRepo.List(c.Request.Context(), c.Query("kind"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Body("runs", runs, total)))
}

// GetRun returns the current state of one run
// @Summary      Get job run
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Param        session  path      string  true  "Session id"
// @Success      200      {object}  response.Response{data=model.SyncRun}
// @Failure      404      {object}  response.Response
// @Router       /api/sync/runs/{session} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	run, err := h.runRepo.FindBySession(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, run))
}

// StreamRun pushes the session's progress events as server-sent events until the run ends
// @Summary      Stream job progress
// @Tags         sync
// @Security     BearerAuth
// @Produce      text/event-stream
// @Param        session  path  string  true  "Session id"
// @Router       /api/sync/runs/{session}/events [get]
func (h *SyncHandler) StreamRun(c *gin.Context) {
	session := c.Param("session")
	events, cancel := h.hub.Subscribe(session)
	defer cancel()

	// the stored row covers events published before the subscription
	if run, err := h.runRepo.FindBySession(c.Request.Context(), session); err == nil {
		c.SSEvent("snapshot", run)
		c.Writer.Flush()
		if run.FinishedAt != nil {
			return
		}
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", evt)
			return evt.Status == model.RunRunning
		}
	})
}

// TailLogs returns the last lines of the activity log
// @Summary      Tail activity log
// @Tags         sync
// @Security     BearerAuth
// @Produce      json
// @Param        lines  query     int  false  "Number of lines (default 200)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/sync/logs [get]
func (h *SyncHandler) TailLogs(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("lines", strconv.Itoa(defaultLogLines)))
	if err != nil || n <= 0 {
		n = defaultLogLines
	}
	if n > maxLogLines {
		n = maxLogLines
	}
	lines, err := logger.TailFile(h.activityFile, n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"lines": lines,
	}))
}
