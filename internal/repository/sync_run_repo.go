package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	Save(ctx context.Context, run *model.SyncRun) error
	FindBySession(ctx context.Context, sessionID string) (*model.SyncRun, error)
	List(ctx context.Context, kind string, page, limit int) ([]model.SyncRun, int64, error)
	LatestPerKind(ctx context.Context) ([]model.SyncRun, error)
	Checkpoint(ctx context.Context, entity string) (*model.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, entity string, lastModified time.Time) error
}

type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	return GetDB(ctx, r.db).Create(run).Error
}

func (r *syncRunRepository) Save(ctx context.Context, run *model.SyncRun) error {
	return GetDB(ctx, r.db).Save(run).Error
}

func (r *syncRunRepository) FindBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	var run model.SyncRun
	if err := GetDB(ctx, r.db).First(&run, "session_id = ?", sessionID).Error; err != nil {
		return nil, translate(err)
	}
	return &run, nil
}

func (r *syncRunRepository) List(ctx context.Context, kind string, page, limit int) ([]model.SyncRun, int64, error) {
	var runs []model.SyncRun
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.SyncRun{})
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// LatestPerKind returns the most recent run of each job kind
func (r *syncRunRepository) LatestPerKind(ctx context.Context) ([]model.SyncRun, error) {
	db := GetDB(ctx, r.db)
	latest := db.Model(&model.SyncRun{}).Select("kind, MAX(started_at) AS started_at").Group("kind")

	var runs []model.SyncRun
	if err := db.Table("sync_runs AS r").Select("r.*").
		Joins("INNER JOIN (?) AS l ON l.kind = r.kind AND l.started_at = r.started_at", latest).
		Order("r.kind").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *syncRunRepository) Checkpoint(ctx context.Context, entity string) (*model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	if err := GetDB(ctx, r.db).First(&cp, "entity = ?", entity).Error; err != nil {
		return nil, translate(err)
	}
	return &cp, nil
}

func (r *syncRunRepository) SaveCheckpoint(ctx context.Context, entity string, lastModified time.Time) error {
	cp := model.SyncCheckpoint{Entity: entity, LastModified: lastModified, UpdatedAt: time.Now()}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_modified", "updated_at"}),
	}).Create(&cp).Error
}
