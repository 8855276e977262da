// Package storetest — общий набор проверок контракта store.Store для всех бэкендов.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"recordkit/internal/store"
)

// Backend — хранилище, которое одновременно выдаёт последовательности.
type Backend interface {
	store.Store
	store.Sequencer
}

// Run прогоняет контракт. open вызывается на каждый подтест и должен отдавать пустое хранилище.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	t.Run("InsertFind", func(t *testing.T) { testInsertFind(t, open(t)) })
	t.Run("Filters", func(t *testing.T) { testFilters(t, open(t)) })
	t.Run("UniqueIndex", func(t *testing.T) { testUniqueIndex(t, open(t)) })
	t.Run("InsertManyAtomic", func(t *testing.T) { testInsertManyAtomic(t, open(t)) })
	t.Run("UpdateDelete", func(t *testing.T) { testUpdateDelete(t, open(t)) })
	t.Run("Sequence", func(t *testing.T) { testSequence(t, open(t)) })
}

func testInsertFind(t *testing.T, s Backend) {
	ctx := context.Background()

	docs, err := s.Find(ctx, "empty_coll", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = s.FindOne(ctx, "empty_coll", store.Filter{"_id": "x"})
	require.ErrorIs(t, err, store.ErrNoDocument)

	require.ErrorIs(t, s.InsertOne(ctx, "things", store.Document{"name": "no id"}), store.ErrMissingKey)

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.InsertOne(ctx, "things", store.Document{"_id": id, "n": 1}))
	}
	require.ErrorIs(t, s.InsertOne(ctx, "things", store.Document{"_id": "a"}), store.ErrDuplicateKey)

	docs, err = s.Find(ctx, "things", nil)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	// порядок вставки
	assert.Equal(t, "b", docs[0]["_id"])
	assert.Equal(t, "c", docs[2]["_id"])
	assert.Equal(t, float64(1), docs[0]["n"])
}

// pair объявляет поля не по алфавиту: фильтр по такой структуре не должен
// зависеть от порядка ключей при кодировании.
type pair struct {
	RefTo      string `json:"ref_to"`
	FieldValue string `json:"field_value"`
}

func testFilters(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertMany(ctx, "objects", []store.Document{
		{"_id": "o1", "slug": "contact", "uncommitted": false, "sort_index": 0},
		{"_id": "o2", "slug": "deal", "uncommitted": true, "sort_index": 1, "group_id": "crm"},
		{"_id": "o3", "slug": "note", "uncommitted": false, "sort_index": 2, "group_id": nil},
		{"_id": "o4", "slug": "ref", "ref": map[string]any{"ref_to": "r1", "field_value": "fd_code_001"}},
		{"_id": "o5", "slug": "struct ref", "ref": pair{RefTo: "r2", FieldValue: "fd_name_001"}},
	}))

	tests := []struct {
		name string
		f    store.Filter
		want []string
	}{
		{"string", store.Filter{"slug": "deal"}, []string{"o2"}},
		{"bool", store.Filter{"uncommitted": false}, []string{"o1", "o3"}},
		{"number", store.Filter{"sort_index": 2}, []string{"o3"}},
		{"nil matches null and missing", store.Filter{"group_id": nil, "slug": "note"}, []string{"o3"}},
		{"nil skips set", store.Filter{"group_id": nil, "uncommitted": true}, nil},
		{"nested", store.Filter{"ref": map[string]any{"ref_to": "r1", "field_value": "fd_code_001"}}, []string{"o4"}},
		{"nested struct", store.Filter{"ref": pair{RefTo: "r1", FieldValue: "fd_code_001"}}, []string{"o4"}},
		{"nested struct stored", store.Filter{"ref": pair{RefTo: "r2", FieldValue: "fd_name_001"}}, []string{"o5"}},
		{"nested stored as struct, filter map", store.Filter{"ref": map[string]any{"field_value": "fd_name_001", "ref_to": "r2"}}, []string{"o5"}},
		{"id", store.Filter{"_id": "o2"}, []string{"o2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "objects", tt.f)
			require.NoError(t, err)
			var got []string
			for _, d := range docs {
				got = append(got, d["_id"].(string))
			}
			assert.Equal(t, tt.want, got)

			n, err := s.CountDocuments(ctx, "objects", tt.f)
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.want), n)
		})
	}
}

func testUniqueIndex(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, "recs", "fd_code_001", true))
	require.NoError(t, s.CreateIndex(ctx, "recs", "fd_code_001", true))

	require.NoError(t, s.InsertOne(ctx, "recs", store.Document{"_id": "r1", "fd_code_001": "CT1"}))
	require.NoError(t, s.InsertOne(ctx, "recs", store.Document{"_id": "r2"}))
	require.NoError(t, s.InsertOne(ctx, "recs", store.Document{"_id": "r3"}))
	require.ErrorIs(t, s.InsertOne(ctx, "recs", store.Document{"_id": "r4", "fd_code_001": "CT1"}), store.ErrDuplicateKey)

	_, err := s.UpdateOne(ctx, "recs", store.Filter{"_id": "r2"}, store.Document{"fd_code_001": "CT1"})
	require.ErrorIs(t, err, store.ErrDuplicateKey)
}

func testInsertManyAtomic(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertOne(ctx, "fields", store.Document{"_id": "f2"}))
	err := s.InsertMany(ctx, "fields", []store.Document{{"_id": "f1"}, {"_id": "f2"}})
	require.ErrorIs(t, err, store.ErrDuplicateKey)

	n, err := s.CountDocuments(ctx, "fields", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testUpdateDelete(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.InsertMany(ctx, "objects", []store.Document{
		{"_id": "o1", "group_id": "a", "v": 1},
		{"_id": "o2", "group_id": "a", "v": 1},
		{"_id": "o3", "group_id": "b", "v": 1},
	}))

	n, err := s.UpdateOne(ctx, "objects", store.Filter{"group_id": "a"}, store.Document{"v": 2, "_id": "ignored"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	d, err := s.FindOne(ctx, "objects", store.Filter{"_id": "o1"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), d["v"])
	assert.Equal(t, "a", d["group_id"])

	n, err = s.UpdateOne(ctx, "objects", store.Filter{"_id": "missing"}, store.Document{"v": 3})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteOne(ctx, "objects", store.Filter{"group_id": "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteMany(ctx, "objects", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func testSequence(t *testing.T, s Backend) {
	ctx := context.Background()

	const n = 40
	got := make([]int64, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			v, err := s.Next(ctx, "obj_a_001")
			got[i] = v
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[int64]bool, n)
	for _, v := range got {
		seen[v] = true
	}
	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "value %d not allocated", i)
	}

	// счётчики объектов независимы
	v, err := s.Next(ctx, "obj_b_001")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}
