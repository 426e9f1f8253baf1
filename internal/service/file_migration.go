package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backoffice/internal/repository"
	"backoffice/internal/storage"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const fileScanBatch = 200

// FileFieldStats counts one attachment column. Migrated is used by MigrateFiles, Renamed by FixFilenames.
type FileFieldStats struct {
	Table     string `json:"table,omitempty"`
	Column    string `json:"column,omitempty"`
	Subfolder string `json:"subfolder,omitempty"`
	Scanned   int    `json:"scanned"`
	Migrated  int    `json:"migrated"`
	Renamed   int    `json:"renamed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

func (s *FileFieldStats) add(o FileFieldStats) {
	s.Scanned += o.Scanned
	s.Migrated += o.Migrated
	s.Renamed += o.Renamed
	s.Failed += o.Failed
	s.Skipped += o.Skipped
}

type FileJobResult struct {
	Fields []FileFieldStats `json:"fields"`
	Total  FileFieldStats   `json:"total"`
}

type FileMigrationService interface {
	MigrateFiles(ctx context.Context) (FileJobResult, error)
	FixFilenames(ctx context.Context) (FileJobResult, error)
}

type fileMigrationService struct {
	recordRepo  repository.RecordRepository
	store       storage.Store
	client      *http.Client
	publicBase  string
	legacyHosts []string
	fields      []AttachmentField
	now         func() time.Time
	logger      *zap.Logger
}

// FileMigrationOption customizes the file jobs
type FileMigrationOption func(*fileMigrationService)

// WithDownloadClient replaces the HTTP client used to fetch remote files
func WithDownloadClient(c *http.Client) FileMigrationOption {
	return func(s *fileMigrationService) {
		s.client = c
	}
}

// WithAttachmentFields restricts the jobs to the given columns
func WithAttachmentFields(fields []AttachmentField) FileMigrationOption {
	return func(s *fileMigrationService) {
		s.fields = fields
	}
}

// WithClock sets the time source used in generated filenames
func WithClock(now func() time.Time) FileMigrationOption {
	return func(s *fileMigrationService) {
		s.now = now
	}
}

func NewFileMigrationService(
	recordRepo repository.RecordRepository,
	store storage.Store,
	publicBase string,
	legacyHosts []string,
	downloadTimeout time.Duration,
	logger *zap.Logger,
	opts ...FileMigrationOption,
) FileMigrationService {
	s := &fileMigrationService{
		recordRepo:  recordRepo,
		store:       store,
		client:      &http.Client{Timeout: downloadTimeout},
		publicBase:  strings.TrimRight(publicBase, "/"),
		legacyHosts: legacyHosts,
		fields:      AttachmentFields,
		now:         time.Now,
		logger:      logger.Named("files"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cellRewrite maps one stored URL to its replacement; ok=false keeps the old value
type cellRewrite func(ctx context.Context, field AttachmentField, row repository.ColumnValue, value string, index int, stats *FileFieldStats) (string, bool)

// MigrateFiles downloads attachments still hosted by the legacy platform and points the columns at local copies.
func (s *fileMigrationService) MigrateFiles(ctx context.Context) (FileJobResult, error) {
	return s.run(ctx, "Migrating", s.migrateValue)
}

// FixFilenames renames stored files whose names contain non-ASCII characters and rewrites the filename part of their URLs.
func (s *fileMigrationService) FixFilenames(ctx context.Context) (FileJobResult, error) {
	return s.run(ctx, "Fixing filenames", s.fixValue)
}

func (s *fileMigrationService) run(ctx context.Context, verb string, rewrite cellRewrite) (FileJobResult, error) {
	var res FileJobResult
	rep := reporterFrom(ctx, s.logger)

	for i, field := range s.fields {
		rep.Step(ctx, fmt.Sprintf("%s %s.%s", verb, field.Table, field.Column), i, len(s.fields))
		stats, err := s.processField(ctx, rep, field, rewrite)
		if err != nil {
			return res, err
		}
		res.Fields = append(res.Fields, stats)
		res.Total.add(stats)
		rep.Logf("%s.%s: scanned=%d migrated=%d renamed=%d failed=%d skipped=%d",
			field.Table, field.Column, stats.Scanned, stats.Migrated, stats.Renamed, stats.Failed, stats.Skipped)
	}
	rep.Step(ctx, verb+" done", len(s.fields), len(s.fields))
	return res, nil
}

func (s *fileMigrationService) processField(ctx context.Context, rep Reporter, field AttachmentField, rewrite cellRewrite) (FileFieldStats, error) {
	stats := FileFieldStats{Table: field.Table, Column: field.Column, Subfolder: field.Subfolder}

	var after uint
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, err := s.recordRepo.ScanColumn(ctx, field.Table, field.Column, after, fileScanBatch)
		if err != nil {
			return stats, err
		}
		if len(rows) == 0 {
			return stats, nil
		}
		for _, row := range rows {
			after = row.ID
			if err := s.processRow(ctx, field, row, rewrite, &stats); err != nil {
				stats.Failed++
				rep.Errorf("%s %s.%s: %v", row.BubbleID, field.Table, field.Column, err)
			}
		}
	}
}

func (s *fileMigrationService) processRow(ctx context.Context, field AttachmentField, row repository.ColumnValue, rewrite cellRewrite, stats *FileFieldStats) error {
	if !field.IsArray {
		value := strings.TrimSpace(row.Value)
		if value == "" {
			return nil
		}
		stats.Scanned++
		next, ok := rewrite(ctx, field, row, value, 0, stats)
		if !ok {
			return nil
		}
		return s.recordRepo.UpdateColumn(ctx, field.Table, row.ID, field.Column, next)
	}

	var values []string
	if err := json.Unmarshal([]byte(row.Value), &values); err != nil {
		return fmt.Errorf("decode array: %w", err)
	}
	changed := false
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		stats.Scanned++
		if next, ok := rewrite(ctx, field, row, value, i, stats); ok {
			values[i] = next
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.recordRepo.UpdateColumn(ctx, field.Table, row.ID, field.Column, datatypes.JSONSlice[string](values))
}

func (s *fileMigrationService) migrateValue(ctx context.Context, field AttachmentField, row repository.ColumnValue, value string, index int, stats *FileFieldStats) (string, bool) {
	if !isLegacyURL(value, s.legacyHosts) {
		stats.Skipped++
		return "", false
	}

	filename := BuildAttachmentFilename(row.ID, originalName(value), s.now(), index)
	if err := s.download(ctx, normalizeScheme(value), field.Subfolder, filename); err != nil {
		stats.Failed++
		reporterFrom(ctx, s.logger).Errorf("%s %s.%s[%d] %s: %v", row.BubbleID, field.Table, field.Column, index, value, err)
		return "", false
	}
	stats.Migrated++
	return LocalFileURL(s.publicBase, field.Subfolder, filename), true
}

func (s *fileMigrationService) download(ctx context.Context, src, subfolder, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	n, err := s.store.Save(ctx, subfolder, filename, resp.Body)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	s.logger.Debug("file stored", zap.String("subfolder", subfolder), zap.String("name", filename), zap.Int64("bytes", n))
	return nil
}

func (s *fileMigrationService) fixValue(ctx context.Context, field AttachmentField, row repository.ColumnValue, value string, index int, stats *FileFieldStats) (string, bool) {
	prefix, subfolder, filename, ok := splitLocalURL(value)
	if !ok || !hasNonASCII(filename) {
		stats.Skipped++
		return "", false
	}

	sanitized := SanitizeFilename(filename)
	if err := s.store.Rename(ctx, subfolder, filename, sanitized); err != nil && !s.alreadyRenamed(ctx, err, subfolder, sanitized) {
		stats.Failed++
		reporterFrom(ctx, s.logger).Errorf("%s %s.%s[%d] rename %q: %v", row.BubbleID, field.Table, field.Column, index, filename, err)
		return "", false
	}
	stats.Renamed++
	return prefix + url.PathEscape(sanitized), true
}

// alreadyRenamed covers a previous run that renamed the file but failed before the URL was written
func (s *fileMigrationService) alreadyRenamed(ctx context.Context, renameErr error, subfolder, sanitized string) bool {
	if !errors.Is(renameErr, storage.ErrNotFound) {
		return false
	}
	exists, err := s.store.Exists(ctx, subfolder, sanitized)
	return err == nil && exists
}
