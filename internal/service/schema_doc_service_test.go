package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchemaRepo struct {
	columns map[string][]repository.ColumnInfo
	descs   map[string]map[string]string
	saved   []model.ColumnDescription
}

func (f *fakeSchemaRepo) ListTables(ctx context.Context) ([]repository.TableInfo, error) {
	out := make([]repository.TableInfo, 0, len(f.columns))
	for name, cols := range f.columns {
		out = append(out, repository.TableInfo{Name: name, ColumnCount: len(cols)})
	}
	return out, nil
}

func (f *fakeSchemaRepo) Columns(ctx context.Context, table string) ([]repository.ColumnInfo, error) {
	return append([]repository.ColumnInfo(nil), f.columns[table]...), nil
}

func (f *fakeSchemaRepo) Descriptions(ctx context.Context, table string) (map[string]string, error) {
	if d, ok := f.descs[table]; ok {
		return d, nil
	}
	return map[string]string{}, nil
}

func (f *fakeSchemaRepo) SetDescription(ctx context.Context, desc *model.ColumnDescription) error {
	f.saved = append(f.saved, *desc)
	return nil
}

func TestSchemaDocService(t *testing.T) {
	repo := &fakeSchemaRepo{
		columns: map[string][]repository.ColumnInfo{
			"invoices": {{Name: "id", DataType: "bigint", Position: 1}, {Name: "status", DataType: "varchar", Position: 2}},
		},
		descs: map[string]map[string]string{
			"invoices": {"status": "Derived from payments"},
		},
	}
	svc := NewSchemaDocService(repo)
	ctx := context.Background()

	desc, err := svc.DescribeTable(ctx, "invoices")
	require.NoError(t, err)
	require.Len(t, desc.Columns, 2)
	assert.Equal(t, "", desc.Columns[0].Description)
	assert.Equal(t, "Derived from payments", desc.Columns[1].Description)

	_, err = svc.DescribeTable(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	require.NoError(t, svc.SetColumnDescription(ctx, "invoices", "status", "  Current status  ", ""))
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "Current status", repo.saved[0].Description)
	assert.Equal(t, model.SystemActor, repo.saved[0].UpdatedBy)

	err = svc.SetColumnDescription(ctx, "invoices", "nope", "x", "admin")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
