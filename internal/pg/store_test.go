package pg

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, "rk", zerolog.Nop()), mock
}

func TestInsertOneDuplicate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`create table if not exists "rk"."obj_contact_001"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`insert into "rk"."obj_contact_001" (id, doc)`)).
		WithArgs("r1", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.InsertOne(context.Background(), "obj_contact_001", store.Document{"_id": "r1"})
	require.ErrorIs(t, err, store.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOneMissingKey(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("create table").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.InsertOne(context.Background(), "objects", store.Document{"name": "x"})
	require.ErrorIs(t, err, store.ErrMissingKey)
}

func TestTableCreatedOnce(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	mock.ExpectExec("create table").WillReturnResult(sqlmock.NewResult(0, 0))
	for range 2 {
		mock.ExpectQuery(regexp.QuoteMeta(`select count(*) from "rk"."fields" where true`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	}

	for range 2 {
		n, err := s.CountDocuments(ctx, "fields", nil)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOneNoDocument(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("create table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`select doc from "rk"."objects" where "id" = $1 order by ord limit 1`)).
		WithArgs("obj_x_001").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	_, err := s.FindOne(context.Background(), "objects", store.Filter{"_id": "obj_x_001"})
	require.ErrorIs(t, err, store.ErrNoDocument)
}

func TestFindDecodesDocuments(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("create table").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`doc @> $1::jsonb`)).
		WithArgs(`{"object_id":"obj_x_001"}`).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow([]byte(`{"_id":"f1","token":"fd_name_001"}`)).
			AddRow([]byte(`{"_id":"f2","token":"fd_code_002"}`)))

	docs, err := s.Find(context.Background(), "fields", store.Filter{"object_id": "obj_x_001"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "fd_code_002", docs[1]["token"])
}

func TestNextSequence(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`insert into "rk"."sequences" as seq`)).
		WithArgs("obj_contact_001").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(3)))

	n, err := s.Next(context.Background(), "obj_contact_001")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestWhere(t *testing.T) {
	tests := []struct {
		name  string
		f     store.Filter
		base  int
		cond  string
		nargs int
	}{
		{"empty", nil, 0, "true", 0},
		{"id", store.Filter{"_id": "a"}, 0, `"id" = $1`, 1},
		{"contains", store.Filter{"slug": "contact", "uncommitted": false}, 1, `doc @> $2::jsonb`, 1},
		{"null", store.Filter{"group_id": nil}, 0, `coalesce(doc->($1::text), 'null'::jsonb) = 'null'::jsonb`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args, err := where(tt.f, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.cond, cond)
			assert.Len(t, args, tt.nargs)
		})
	}
}

func TestSafeTable(t *testing.T) {
	tbl, err := safeTable("Objects")
	require.NoError(t, err)
	assert.Equal(t, "objects", tbl)

	tbl, err = safeTable("user")
	require.NoError(t, err)
	assert.Equal(t, "e_user", tbl)

	tbl, err = safeTable("sequences")
	require.NoError(t, err)
	assert.Equal(t, "e_sequences", tbl)

	_, err = safeTable(`x"; drop table y`)
	require.Error(t, err)
}
