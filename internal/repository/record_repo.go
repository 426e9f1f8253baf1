package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository writes mapped remote records into any mirrored table keyed by bubble_id.
type RecordRepository interface {
	Upsert(ctx context.Context, table, bubbleID string, columns map[string]interface{}) error
	MergeEmpty(ctx context.Context, table, bubbleID string, columns map[string]interface{}) ([]string, error)
	ModifiedDates(ctx context.Context, table string, bubbleIDs []string) (map[string]time.Time, error)
	LocalID(ctx context.Context, table, bubbleID string) (uint, error)
	ScanColumn(ctx context.Context, table, column string, afterID uint, limit int) ([]ColumnValue, error)
	UpdateColumn(ctx context.Context, table string, id uint, column string, value interface{}) error
}

// ColumnValue is one non-null cell read as text. JSON columns arrive as their JSON encoding.
type ColumnValue struct {
	ID       uint
	BubbleID string
	Value    string
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func sortedKeys(columns map[string]interface{}) []string {
	keys := make([]string, 0, len(columns))
	for k := range columns {
		if k == "bubble_id" || k == "id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Upsert inserts the row or overwrites every supplied column of the existing one.
func (r *recordRepository) Upsert(ctx context.Context, table, bubbleID string, columns map[string]interface{}) error {
	if bubbleID == "" {
		return fmt.Errorf("upsert into %s: empty bubble_id", table)
	}
	now := time.Now()
	row := make(map[string]interface{}, len(columns)+3)
	for k, v := range columns {
		row[k] = v
	}
	row["bubble_id"] = bubbleID
	row["created_at"] = now
	row["updated_at"] = now

	updates := append(sortedKeys(columns), "updated_at")
	return GetDB(ctx, r.db).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bubble_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
}

// MergeEmpty fills only the columns that are empty locally and returns their names.
// A missing row is inserted with every supplied column.
func (r *recordRepository) MergeEmpty(ctx context.Context, table, bubbleID string, columns map[string]interface{}) ([]string, error) {
	db := GetDB(ctx, r.db)

	var existing []map[string]interface{}
	if err := db.Table(table).Where("bubble_id = ?", bubbleID).Limit(1).Find(&existing).Error; err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if err := r.Upsert(ctx, table, bubbleID, columns); err != nil {
			return nil, err
		}
		return sortedKeys(columns), nil
	}

	current := existing[0]
	fill := map[string]interface{}{}
	for _, col := range sortedKeys(columns) {
		if isEmptyValue(current[col]) && !isEmptyValue(columns[col]) {
			fill[col] = columns[col]
		}
	}
	if len(fill) == 0 {
		return nil, nil
	}
	fill["updated_at"] = time.Now()
	if err := db.Table(table).Where("bubble_id = ?", bubbleID).Updates(fill).Error; err != nil {
		return nil, err
	}

	filled := sortedKeys(fill)
	out := filled[:0]
	for _, c := range filled {
		if c != "updated_at" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *recordRepository) ModifiedDates(ctx context.Context, table string, bubbleIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(bubbleIDs))
	if len(bubbleIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		BubbleID     string
		ModifiedDate *time.Time
	}
	if err := GetDB(ctx, r.db).Table(table).Select("bubble_id, modified_date").
		Where("bubble_id IN ?", bubbleIDs).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ModifiedDate != nil {
			out[row.BubbleID] = *row.ModifiedDate
		}
	}
	return out, nil
}

func (r *recordRepository) LocalID(ctx context.Context, table, bubbleID string) (uint, error) {
	var ids []uint
	if err := GetDB(ctx, r.db).Table(table).Where("bubble_id = ?", bubbleID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

// ScanColumn pages through rows with a non-null column in id order, starting after afterID.
// table and column come from code, never from requests.
func (r *recordRepository) ScanColumn(ctx context.Context, table, column string, afterID uint, limit int) ([]ColumnValue, error) {
	quoted := clause.Column{Name: column}
	var rows []ColumnValue
	err := GetDB(ctx, r.db).Table(table).
		Select("id, bubble_id, CAST(? AS TEXT) AS value", quoted).
		Where("? IS NOT NULL", quoted).
		Where("id > ?", afterID).
		Order("id").Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan %s.%s: %w", table, column, err)
	}
	return rows, nil
}

func (r *recordRepository) UpdateColumn(ctx context.Context, table string, id uint, column string, value interface{}) error {
	return GetDB(ctx, r.db).Table(table).Where("id = ?", id).
		Updates(map[string]interface{}{column: value, "updated_at": time.Now()}).Error
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return isEmptyText(val)
	case []byte:
		return isEmptyText(string(val))
	case *string:
		return val == nil || isEmptyText(*val)
	case *time.Time:
		return val == nil
	case *int:
		return val == nil
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return false
		}
		return isEmptyValue(inner)
	case fmt.Stringer:
		return isEmptyText(val.String())
	}
	return false
}

func isEmptyText(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "[]":
		return true
	}
	return false
}
