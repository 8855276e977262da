package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/record"
	"recordkit/internal/schema"
	"recordkit/internal/sqlite"
)

func TestListRecordsByReference(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fields := field.New(s)
	objects := object.New(s, fields)
	require.NoError(t, objects.EnsureIndexes(ctx))
	records := record.New(s, s, fields)

	contact, _, err := objects.CreateObjectWithFields(ctx, "Contact", "", "setup", []schema.FieldSpec{
		{Name: "Code", Token: "fd_code", Kind: schema.Identity{Prefix: "CT"}},
		{Name: "Name", Token: "fd_name", Kind: schema.Text{MaxLength: 50}},
	})
	require.NoError(t, err)
	deal, _, err := objects.CreateObjectWithFields(ctx, "Deal", "", "setup", []schema.FieldSpec{
		{Name: "Contact", Token: "fd_contact", Kind: schema.ReferenceObject{TargetObject: contact.ID}},
		{Name: "Contact name", Token: "fd_contact_name", Kind: schema.ReferenceField{TargetObject: contact.ID, TargetField: "fd_name"}},
	})
	require.NoError(t, err)

	an, err := records.CreateRecord(ctx, contact.ID, map[string]any{"fd_name": "An"}, "alice")
	require.NoError(t, err)
	binh, err := records.CreateRecord(ctx, contact.ID, map[string]any{"fd_name": "Binh"}, "alice")
	require.NoError(t, err)
	d, err := records.CreateRecord(ctx, deal.ID, map[string]any{"fd_contact": an.ID, "fd_contact_name": an.ID}, "alice")
	require.NoError(t, err)
	_, err = records.CreateRecord(ctx, deal.ID, map[string]any{"fd_contact": binh.ID}, "alice")
	require.NoError(t, err)

	for _, token := range []string{"fd_contact", "fd_contact_name"} {
		got, err := records.ListRecords(ctx, deal.ID, map[string]any{token: an.ID})
		require.NoError(t, err)
		require.Len(t, got, 1, token)
		assert.Equal(t, d.ID, got[0].ID)
	}

	// значение, прочитанное из записи, тоже годится как фильтр
	got, err := records.ListRecords(ctx, deal.ID, map[string]any{"fd_contact": d.Values["fd_contact"]})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d.ID, got[0].ID)
}

func TestLongObjectName(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fields := field.New(s)
	objects := object.New(s, fields)
	require.NoError(t, objects.EnsureIndexes(ctx))
	records := record.New(s, s, fields)

	name := "Hợp đồng bảo trì hệ thống điều hòa không khí cho khách hàng doanh nghiệp"
	obj, created, err := objects.CreateObjectWithFields(ctx, name, "", "setup", []schema.FieldSpec{
		{Name: "Mã hợp đồng bảo trì hệ thống điều hòa không khí dài", Kind: schema.Identity{Prefix: "HD"}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, name, obj.Name)
	assert.LessOrEqual(t, len(obj.ID), 63)

	rec, err := records.CreateRecord(ctx, obj.ID, map[string]any{}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "HD1", rec.DisplayID(created[0].Token))
}
