package service

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/model"
	"backoffice/internal/repository"
)

type TableDescription struct {
	Name    string                  `json:"name"`
	Columns []repository.ColumnInfo `json:"columns"`
}

type SetColumnDescriptionRequest struct {
	Description string `json:"description" binding:"max=4000"`
}

type SchemaDocService interface {
	ListTables(ctx context.Context) ([]repository.TableInfo, error)
	DescribeTable(ctx context.Context, table string) (TableDescription, error)
	SetColumnDescription(ctx context.Context, table, column, description, actor string) error
}

type schemaDocService struct {
	schemaRepo repository.SchemaRepository
}

func NewSchemaDocService(schemaRepo repository.SchemaRepository) SchemaDocService {
	return &schemaDocService{schemaRepo: schemaRepo}
}

func (s *schemaDocService) ListTables(ctx context.Context) ([]repository.TableInfo, error) {
	tables, err := s.schemaRepo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *schemaDocService) DescribeTable(ctx context.Context, table string) (TableDescription, error) {
	cols, err := s.schemaRepo.Columns(ctx, table)
	if err != nil {
		return TableDescription{}, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return TableDescription{}, fmt.Errorf("%w: table %s", repository.ErrNotFound, table)
	}

	descs, err := s.schemaRepo.Descriptions(ctx, table)
	if err != nil {
		return TableDescription{}, fmt.Errorf("failed to read descriptions of %s: %w", table, err)
	}
	for i := range cols {
		cols[i].Description = descs[cols[i].Name]
	}
	return TableDescription{Name: table, Columns: cols}, nil
}

// SetColumnDescription stores documentation for a column that exists in the live schema
func (s *schemaDocService) SetColumnDescription(ctx context.Context, table, column, description, actor string) error {
	cols, err := s.schemaRepo.Columns(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	found := false
	for _, c := range cols {
		if c.Name == column {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: column %s.%s", repository.ErrNotFound, table, column)
	}

	return s.schemaRepo.SetDescription(ctx, &model.ColumnDescription{
		TableName:   table,
		ColumnName:  column,
		Description: strings.TrimSpace(description),
		UpdatedBy:   actorOrSystem(actor),
	})
}
