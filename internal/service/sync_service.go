package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/bubble"
	"backoffice/internal/repository"

	"go.uber.org/zap"
)

// RemoteSource is the part of the Bubble client the sync needs
type RemoteSource interface {
	Walk(ctx context.Context, typeName string, q bubble.Query, fn func(*bubble.Page) error) error
	Get(ctx context.Context, typeName, id string) (bubble.Record, error)
}

type SyncOptions struct {
	DateFrom       *time.Time `json:"date_from,omitempty"`
	DateTo         *time.Time `json:"date_to,omitempty"`
	SyncFiles      bool       `json:"sync_files"`
	MergeEmptyOnly bool       `json:"merge_empty_only"`
	Incremental    bool       `json:"incremental"`
}

type EntitySyncResult struct {
	Entity     string            `json:"entity"`
	Fetched    int               `json:"fetched"`
	Written    int               `json:"written"`
	Merged     int               `json:"merged"`
	Skipped    int               `json:"skipped"`
	Checkpoint *time.Time        `json:"checkpoint,omitempty"`
	LinkRepair *LinkRepairResult `json:"link_repair,omitempty"`
	Files      *FileJobResult    `json:"files,omitempty"`
}

type SyncAllResult struct {
	Entities   []EntitySyncResult `json:"entities"`
	LinkRepair *LinkRepairResult  `json:"link_repair,omitempty"`
	Files      *FileJobResult     `json:"files,omitempty"`
}

type SyncByIDsResult struct {
	Entity     string            `json:"entity"`
	Requested  int               `json:"requested"`
	UpToDate   int               `json:"up_to_date"`
	Written    int               `json:"written"`
	Missing    int               `json:"missing"`
	LinkRepair *LinkRepairResult `json:"link_repair,omitempty"`
}

type SyncService interface {
	SyncEntity(ctx context.Context, entity string, opts SyncOptions) (EntitySyncResult, error)
	SyncAll(ctx context.Context, opts SyncOptions) (SyncAllResult, error)
	SyncByIDs(ctx context.Context, entity string, stamps []bubble.IDStamp, opts SyncOptions) (SyncByIDsResult, error)
}

type syncService struct {
	source      RemoteSource
	recordRepo  repository.RecordRepository
	runRepo     repository.SyncRunRepository
	linkRepair  LinkRepairService
	fileService FileMigrationService
	logger      *zap.Logger
}

func NewSyncService(
	source RemoteSource,
	recordRepo repository.RecordRepository,
	runRepo repository.SyncRunRepository,
	linkRepair LinkRepairService,
	fileService FileMigrationService,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		source:      source,
		recordRepo:  recordRepo,
		runRepo:     runRepo,
		linkRepair:  linkRepair,
		fileService: fileService,
		logger:      logger.Named("sync"),
	}
}

// SyncEntity mirrors one remote type, then repairs links and optionally migrates files.
func (s *syncService) SyncEntity(ctx context.Context, entity string, opts SyncOptions) (EntitySyncResult, error) {
	res, err := s.syncEntity(ctx, entity, opts)
	if err != nil {
		return res, err
	}
	return res, s.afterSync(ctx, opts, &res.LinkRepair, &res.Files)
}

// syncEntity walks one remote type page by page. The checkpoint advances after every page
// when the run covers everything since the stored checkpoint, so an aborted run keeps what it
// wrote and an incremental rerun resumes from there.
func (s *syncService) syncEntity(ctx context.Context, entity string, opts SyncOptions) (EntitySyncResult, error) {
	spec, err := LookupEntity(entity)
	if err != nil {
		return EntitySyncResult{}, err
	}
	res := EntitySyncResult{Entity: spec.Name}
	rep := reporterFrom(ctx, s.logger)

	var stored *time.Time
	cp, err := s.runRepo.Checkpoint(ctx, spec.Name)
	switch {
	case err == nil:
		stored = &cp.LastModified
	case !errors.Is(err, repository.ErrNotFound):
		return res, fmt.Errorf("failed to read checkpoint for %s: %w", spec.Name, err)
	}

	q := bubble.Query{DateFrom: opts.DateFrom, DateTo: opts.DateTo}
	if opts.Incremental && q.DateFrom == nil && stored != nil {
		from := *stored
		q.DateFrom = &from
		rep.Logf("Syncing %s incrementally from %s", spec.Name, from.UTC().Format(time.RFC3339))
	}
	track := coversCheckpoint(q, stored)
	rep.Logf("Syncing %s (%s)", spec.Name, spec.TypeName)

	var highWater time.Time
	if stored != nil {
		highWater = *stored
	}
	err = s.source.Walk(ctx, spec.TypeName, q, func(page *bubble.Page) error {
		advanced := false
		for _, rec := range page.Results {
			res.Fetched++
			id := rec.ID()
			if id == "" {
				res.Skipped++
				continue
			}
			if err := s.write(ctx, spec, id, rec, opts, &res); err != nil {
				return fmt.Errorf("%s %s: %w", spec.Name, id, err)
			}
			if mod, ok := rec.ModifiedDate(); ok && mod.After(highWater) {
				highWater = mod
				advanced = true
			}
		}

		if track && advanced {
			if err := s.runRepo.SaveCheckpoint(ctx, spec.Name, highWater); err != nil {
				return fmt.Errorf("failed to save checkpoint for %s: %w", spec.Name, err)
			}
			hw := highWater
			res.Checkpoint = &hw
		}
		rep.Step(ctx, fmt.Sprintf("%s: %d records", spec.Name, res.Fetched), res.Fetched, res.Fetched+page.Remaining)
		return nil
	})
	if err != nil {
		rep.Errorf("Sync of %s stopped after %d records: %v", spec.Name, res.Fetched, err)
		return res, err
	}

	rep.Logf("Synced %s: fetched=%d written=%d merged=%d skipped=%d", spec.Name, res.Fetched, res.Written, res.Merged, res.Skipped)
	return res, nil
}

// coversCheckpoint reports whether a query reads every record modified after the stored
// checkpoint. Only such runs may move the checkpoint; a bounded or later window would leave a gap.
func coversCheckpoint(q bubble.Query, stored *time.Time) bool {
	if q.DateTo != nil {
		return false
	}
	if q.DateFrom == nil {
		return true
	}
	return stored != nil && !q.DateFrom.After(*stored)
}

func (s *syncService) write(ctx context.Context, spec EntitySpec, id string, rec bubble.Record, opts SyncOptions, res *EntitySyncResult) error {
	columns := spec.Map(rec)
	if opts.MergeEmptyOnly {
		filled, err := s.recordRepo.MergeEmpty(ctx, spec.Table, id, columns)
		if err != nil {
			return err
		}
		if len(filled) > 0 {
			res.Merged++
		}
		return nil
	}
	if err := s.recordRepo.Upsert(ctx, spec.Table, id, columns); err != nil {
		return err
	}
	res.Written++
	return nil
}

// SyncAll syncs every entity in dependency order, then repairs links and optionally migrates files.
// The first failing entity stops the run.
func (s *syncService) SyncAll(ctx context.Context, opts SyncOptions) (SyncAllResult, error) {
	var out SyncAllResult
	for _, spec := range Entities {
		res, err := s.syncEntity(ctx, spec.Name, opts)
		out.Entities = append(out.Entities, res)
		if err != nil {
			return out, err
		}
	}
	return out, s.afterSync(ctx, opts, &out.LinkRepair, &out.Files)
}

func (s *syncService) afterSync(ctx context.Context, opts SyncOptions, repair **LinkRepairResult, files **FileJobResult) error {
	lr, err := s.linkRepair.RepairAll(ctx)
	if err != nil {
		return fmt.Errorf("link repair: %w", err)
	}
	*repair = &lr

	if opts.SyncFiles && files != nil && s.fileService != nil {
		fr, err := s.fileService.MigrateFiles(ctx)
		if err != nil {
			return fmt.Errorf("file migration: %w", err)
		}
		*files = &fr
	}
	return nil
}

// SyncByIDs fetches only the listed records whose remote modification is newer than the local copy.
// Stamps without a date are always fetched.
func (s *syncService) SyncByIDs(ctx context.Context, entity string, stamps []bubble.IDStamp, opts SyncOptions) (SyncByIDsResult, error) {
	spec, err := LookupEntity(entity)
	if err != nil {
		return SyncByIDsResult{}, err
	}
	res := SyncByIDsResult{Entity: spec.Name, Requested: len(stamps)}
	rep := reporterFrom(ctx, s.logger)

	ids := make([]string, 0, len(stamps))
	for _, st := range stamps {
		ids = append(ids, st.ID)
	}
	local := map[string]time.Time{}
	for _, part := range chunkStrings(ids, lookupChunk) {
		dates, err := s.recordRepo.ModifiedDates(ctx, spec.Table, part)
		if err != nil {
			return res, fmt.Errorf("failed to read local modified dates: %w", err)
		}
		for k, v := range dates {
			local[k] = v
		}
	}

	rep.Logf("Syncing %d %s ids", len(stamps), spec.Name)
	for i, st := range stamps {
		if localMod, ok := local[st.ID]; ok && st.HasDate() && !st.ModifiedDate.After(localMod) {
			res.UpToDate++
			continue
		}

		rec, err := s.source.Get(ctx, spec.TypeName, st.ID)
		if errors.Is(err, bubble.ErrNotFound) {
			res.Missing++
			rep.Logf("%s %s no longer exists remotely", spec.Name, st.ID)
			continue
		}
		if err != nil {
			rep.Errorf("Sync of %s %s failed: %v", spec.Name, st.ID, err)
			return res, fmt.Errorf("%s %s: %w", spec.Name, st.ID, err)
		}

		var entityRes EntitySyncResult
		if err := s.write(ctx, spec, st.ID, rec, opts, &entityRes); err != nil {
			rep.Errorf("Sync of %s %s failed: %v", spec.Name, st.ID, err)
			return res, fmt.Errorf("%s %s: %w", spec.Name, st.ID, err)
		}
		res.Written += entityRes.Written + entityRes.Merged
		rep.Step(ctx, fmt.Sprintf("%s %s synced", spec.Name, st.ID), i+1, len(stamps))
	}

	rep.Logf("Synced %s by id: requested=%d up_to_date=%d written=%d missing=%d",
		spec.Name, res.Requested, res.UpToDate, res.Written, res.Missing)
	return res, s.afterSync(ctx, opts, &res.LinkRepair, nil)
}
