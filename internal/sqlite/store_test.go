package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/store"
	"recordkit/internal/store/storetest"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend { return open(t) })
}

func TestUnsafeCollection(t *testing.T) {
	s := open(t)
	err := s.InsertOne(context.Background(), `x"; drop table y; --`, store.Document{"_id": "a"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrDuplicateKey)
}

func TestUpdateNullRemovesKey(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	require.NoError(t, s.InsertOne(ctx, "recs", store.Document{"_id": "r1", "fd_note_001": "x"}))

	_, err := s.UpdateOne(ctx, "recs", store.Filter{"_id": "r1"}, store.Document{"fd_note_001": nil})
	require.NoError(t, err)

	n, err := s.CountDocuments(ctx, "recs", store.Filter{"fd_note_001": nil})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
