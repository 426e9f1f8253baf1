package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableInfo summarizes one table of the public schema
type TableInfo struct {
	Name        string `db:"table_name" json:"name"`
	RowEstimate int64  `db:"row_estimate" json:"row_estimate"`
	ColumnCount int    `db:"column_count" json:"column_count"`
}

// ColumnInfo describes one column as reported by information_schema
type ColumnInfo struct {
	Name        string  `db:"column_name" json:"name"`
	DataType    string  `db:"data_type" json:"data_type"`
	Nullable    string  `db:"is_nullable" json:"nullable"`
	Default     *string `db:"column_default" json:"default"`
	Position    int     `db:"ordinal_position" json:"position"`
	Description string  `db:"-" json:"description"`
}

const listTablesQuery = `
SELECT t.table_name,
       COALESCE(c.reltuples, 0)::bigint AS row_estimate,
       (SELECT COUNT(*) FROM information_schema.columns col
         WHERE col.table_schema = t.table_schema AND col.table_name = t.table_name) AS column_count
  FROM information_schema.tables t
  LEFT JOIN pg_class c ON c.relname = t.table_name
 WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
 ORDER BY t.table_name`

const describeTableQuery = `
SELECT column_name, data_type, is_nullable, column_default, ordinal_position
  FROM information_schema.columns
 WHERE table_schema = 'public' AND table_name = $1
 ORDER BY ordinal_position`

type SchemaRepository interface {
	ListTables(ctx context.Context) ([]TableInfo, error)
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)
	Descriptions(ctx context.Context, table string) (map[string]string, error)
	SetDescription(ctx context.Context, desc *model.ColumnDescription) error
}

type schemaRepository struct {
	meta *sqlx.DB
	db   *gorm.DB
}

// NewSchemaRepository reads catalog views through sqlx and stores descriptions through gorm.
func NewSchemaRepository(meta *sqlx.DB, db *gorm.DB) SchemaRepository {
	return &schemaRepository{meta: meta, db: db}
}

func (r *schemaRepository) ListTables(ctx context.Context) ([]TableInfo, error) {
	var tables []TableInfo
	if err := r.meta.SelectContext(ctx, &tables, listTablesQuery); err != nil {
		return nil, err
	}
	return tables, nil
}

func (r *schemaRepository) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	var cols []ColumnInfo
	if err := r.meta.SelectContext(ctx, &cols, describeTableQuery, table); err != nil {
		return nil, err
	}
	return cols, nil
}

func (r *schemaRepository) Descriptions(ctx context.Context, table string) (map[string]string, error) {
	var rows []model.ColumnDescription
	if err := GetDB(ctx, r.db).Where("table_name = ?", table).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ColumnName] = row.Description
	}
	return out, nil
}

func (r *schemaRepository) SetDescription(ctx context.Context, desc *model.ColumnDescription) error {
	desc.UpdatedAt = time.Now()
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}, {Name: "column_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "updated_by", "updated_at"}),
	}).Create(desc).Error
}
