package object_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCatalog(t *testing.T, opts ...object.Option) (*object.Catalog, *field.Catalog, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	fields := field.New(s)
	c := object.New(s, fields, opts...)
	require.NoError(t, c.EnsureIndexes(context.Background()))
	return c, fields, s
}

func TestCreateObject(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCatalog(t, object.WithSuffix(func() int { return 42 }))

	obj, err := c.CreateObject(ctx, " Khách hàng ", "crm", "alice")
	require.NoError(t, err)
	assert.Equal(t, "obj_khach_hang_042", obj.ID)
	assert.Equal(t, "Khách hàng", obj.Name)
	assert.Equal(t, "alice", obj.CreatedBy)
	assert.False(t, obj.Uncommitted)

	_, err = c.CreateObject(ctx, "khach hang", "crm", "alice")
	assert.ErrorIs(t, err, schema.ErrSchemaConflict)

	_, err = c.CreateObject(ctx, "  ", "crm", "alice")
	assert.ErrorIs(t, err, schema.ErrValidationFailed)

	got, err := c.FindObjectByName(ctx, "KHÁCH HÀNG")
	require.NoError(t, err)
	assert.Equal(t, obj.ID, got.ID)
}

func TestIDRetry(t *testing.T) {
	ctx := context.Background()
	suffixes := []int{5, 5, 6}
	c, _, _ := newCatalog(t, object.WithSuffix(func() int {
		n := suffixes[0]
		suffixes = suffixes[1:]
		return n
	}))
	a, err := c.CreateObject(ctx, "Deal", "", "x")
	require.NoError(t, err)
	assert.Equal(t, "obj_deal_005", a.ID)

	// тот же слаг занят уникальным индексом, id при этом подбирается заново
	_, err = c.CreateObject(ctx, "deal", "", "x")
	assert.ErrorIs(t, err, schema.ErrSchemaConflict)
	assert.Empty(t, suffixes)
}

func TestCreateObjectWithFields(t *testing.T) {
	ctx := context.Background()
	c, fields, _ := newCatalog(t)

	obj, fs, err := c.CreateObjectWithFields(ctx, "Contact", "crm", "alice", []schema.FieldSpec{
		{Name: "Code", Token: "fd_code", Kind: schema.Identity{Prefix: "ct"}},
		{Name: "Name", Token: "fd_name", Kind: schema.Text{MaxLength: 50}},
	})
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, schema.Identity{Prefix: "CT"}, fs[0].Kind)
	assert.Equal(t, 1, fs[1].SortIndex)
	assert.EqualValues(t, 2, obj.SchemaVersion)

	stored, err := c.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	assert.False(t, stored.Uncommitted)
	assert.EqualValues(t, 2, stored.SchemaVersion)

	listed, err := fields.ListFields(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, fs, listed)
}

func TestCreateObjectWithFieldsRollsBack(t *testing.T) {
	ctx := context.Background()
	c, _, s := newCatalog(t)

	_, _, err := c.CreateObjectWithFields(ctx, "Contact", "crm", "alice", []schema.FieldSpec{
		{Name: "Name", Token: "fd_name", Kind: schema.Text{MaxLength: 50}},
		{Name: "Code", Token: "fd_code", Kind: schema.Identity{Prefix: "CT"}},
		{Name: "Code 2", Token: "fd_code2", Kind: schema.Identity{Prefix: "XX"}},
	})
	require.ErrorIs(t, err, schema.ErrDuplicateIdentityField)

	_, err = c.FindObjectByName(ctx, "Contact")
	assert.ErrorIs(t, err, schema.ErrObjectNotFound)
	n, err := s.CountDocuments(ctx, schema.FieldsCollection, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// имя снова свободно
	_, _, err = c.CreateObjectWithFields(ctx, "Contact", "crm", "alice", nil)
	require.NoError(t, err)
}

func TestListAndMove(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCatalog(t)
	for _, n := range []string{"Contact", "Deal", "Invoice"} {
		_, err := c.CreateObject(ctx, n, "crm", "alice")
		require.NoError(t, err)
	}
	_, err := c.CreateObject(ctx, "Ticket", "support", "alice")
	require.NoError(t, err)

	crm, err := c.ListObjects(ctx, "crm")
	require.NoError(t, err)
	require.Len(t, crm, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{crm[0].SortIndex, crm[1].SortIndex, crm[2].SortIndex})

	all, err := c.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	moved, err := c.MoveObject(ctx, crm[2].ID, 0, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", moved.ModifiedBy)

	_, err = c.MoveObject(ctx, crm[2].ID, -1, "bob")
	assert.ErrorIs(t, err, schema.ErrValidationFailed)
	_, err = c.MoveObject(ctx, "obj_nope_001", 1, "bob")
	assert.ErrorIs(t, err, schema.ErrObjectNotFound)
}

func TestDeleteObject(t *testing.T) {
	ctx := context.Background()
	c, fields, _ := newCatalog(t)
	contact, _, err := c.CreateObjectWithFields(ctx, "Contact", "", "a", []schema.FieldSpec{
		{Name: "Name", Token: "fd_name", Kind: schema.Text{MaxLength: 50}},
	})
	require.NoError(t, err)
	deal, _, err := c.CreateObjectWithFields(ctx, "Deal", "", "a", []schema.FieldSpec{
		{Name: "Contact", Token: "fd_contact", Kind: schema.ReferenceObject{TargetObject: contact.ID}},
	})
	require.NoError(t, err)

	err = c.DeleteObject(ctx, contact.ID)
	assert.ErrorIs(t, err, schema.ErrSchemaConflict)

	require.NoError(t, c.DeleteObject(ctx, deal.ID))
	require.NoError(t, c.DeleteObject(ctx, contact.ID))

	_, err = c.GetObject(ctx, contact.ID)
	assert.ErrorIs(t, err, schema.ErrObjectNotFound)
	fs, err := fields.ListFields(ctx, contact.ID)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestSweepUncommitted(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c, _, s := newCatalog(t, object.WithClock(clk.now))

	stale := []schema.Object{
		{ID: "obj_old_001", Name: "Old", Slug: "old", Uncommitted: true, CreatedAt: clk.t.Add(-2 * time.Hour)},
		{ID: "obj_older_001", Name: "Older", Slug: "older", Uncommitted: true, CreatedAt: clk.t.Add(-3 * time.Hour)},
		{ID: "obj_fresh_001", Name: "Fresh", Slug: "fresh", Uncommitted: true, CreatedAt: clk.t.Add(-time.Minute)},
	}
	for _, o := range stale {
		doc, err := store.Encode(o)
		require.NoError(t, err)
		require.NoError(t, s.InsertOne(ctx, schema.ObjectsCollection, doc))
		require.NoError(t, s.InsertOne(ctx, schema.FieldsCollection,
			store.Document{"_id": o.ID + "-f", "object_id": o.ID, "token": "fd_x"}))
	}
	_, err := c.CreateObject(ctx, "Live", "", "a")
	require.NoError(t, err)

	// незавершённый объект не виден снаружи
	_, err = c.GetObject(ctx, "obj_old_001")
	assert.ErrorIs(t, err, schema.ErrObjectNotFound)

	n, err := c.SweepUncommitted(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := s.CountDocuments(ctx, schema.ObjectsCollection, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, left)
	fl, err := s.CountDocuments(ctx, schema.FieldsCollection, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fl)
}
