package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"recordkit/internal/store"
)

// Store — документное хранилище поверх PostgreSQL: таблица на коллекцию, документ в jsonb.
type Store struct {
	db     *sql.DB
	schema string
	log    zerolog.Logger

	mu    sync.Mutex
	ready map[string]string // коллекция -> имя таблицы
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.Sequencer = (*Store)(nil)
)

func New(db *sql.DB, schema string, log zerolog.Logger) *Store {
	return &Store{db: db, schema: strings.ToLower(schema), log: log, ready: make(map[string]string)}
}

// Migrate создаёт схему и таблицу последовательностей.
func (s *Store) Migrate(ctx context.Context) error {
	return ApplyDDL(ctx, s.db, BaseDDL(s.schema), s.log)
}

// table создаёт таблицу коллекции при первом обращении и возвращает её полное имя.
func (s *Store) table(ctx context.Context, collection string) (string, error) {
	tbl, err := s.bareTable(ctx, collection)
	if err != nil {
		return "", err
	}
	return qualified(s.schema, tbl), nil
}

func (s *Store) bareTable(ctx context.Context, collection string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.ready[collection]; ok {
		return t, nil
	}
	tbl, err := safeTable(collection)
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, collectionDDL(s.schema, tbl)); err != nil && !alreadyExists(err) {
		return "", fmt.Errorf("create collection %s: %w", collection, err)
	}
	s.ready[collection] = tbl
	return tbl, nil
}

// where строит условие из фильтра. Непустые значения сравниваются через
// jsonb containment, nil совпадает и с null, и с отсутствующим ключом.
func where(f store.Filter, argBase int) (string, []any, error) {
	if len(f) == 0 {
		return "true", nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	contains := map[string]any{}
	for _, k := range keys {
		v := f[k]
		switch {
		case k == store.KeyField:
			args = append(args, v)
			conds = append(conds, fmt.Sprintf(`"id" = $%d`, argBase+len(args)))
		case v == nil:
			args = append(args, k)
			conds = append(conds, fmt.Sprintf(`coalesce(doc->($%d::text), 'null'::jsonb) = 'null'::jsonb`, argBase+len(args)))
		default:
			contains[k] = v
		}
	}
	if len(contains) > 0 {
		b, err := json.Marshal(contains)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(b))
		conds = append(conds, fmt.Sprintf(`doc @> $%d::jsonb`, argBase+len(args)))
	}
	return strings.Join(conds, " and "), args, nil
}

func scanDocs(rows *sql.Rows) ([]store.Document, error) {
	defer rows.Close()
	var out []store.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d store.Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) find(ctx context.Context, collection string, f store.Filter, limit int) ([]store.Document, error) {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	cond, args, err := where(f, 0)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`select doc from %s where %s order by ord`, tbl, cond)
	if limit > 0 {
		q += fmt.Sprintf(" limit %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return scanDocs(rows)
}

func (s *Store) FindOne(ctx context.Context, collection string, f store.Filter) (store.Document, error) {
	docs, err := s.find(ctx, collection, f, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNoDocument
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, collection string, f store.Filter) ([]store.Document, error) {
	return s.find(ctx, collection, f, 0)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, x execer, tbl string, doc store.Document) error {
	id, err := store.KeyOf(doc)
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = x.ExecContext(ctx, fmt.Sprintf(`insert into %s (id, doc) values ($1, $2::jsonb)`, tbl), id, string(b))
	if uniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrDuplicateKey, id)
	}
	return err
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc store.Document) error {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	return insert(ctx, s.db, tbl, doc)
}

// InsertMany — всё или ничего, в одной транзакции.
func (s *Store) InsertMany(ctx context.Context, collection string, docs []store.Document) error {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, d := range docs {
		if err := insert(ctx, tx, tbl, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateOne(ctx context.Context, collection string, f store.Filter, set store.Document) (int64, error) {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	patch := make(map[string]any, len(set))
	for k, v := range set {
		if k != store.KeyField {
			patch[k] = v
		}
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("encode update: %w", err)
	}
	cond, args, err := where(f, 1)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`update %[1]s set doc = doc || $1::jsonb where id = (select id from %[1]s where %[2]s order by ord limit 1)`, tbl, cond)
	res, err := s.db.ExecContext(ctx, q, append([]any{string(b)}, args...)...)
	if uniqueViolation(err) {
		return 0, store.ErrDuplicateKey
	}
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (s *Store) delete(ctx context.Context, collection string, f store.Filter, one bool) (int64, error) {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	cond, args, err := where(f, 0)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`delete from %s where %s`, tbl, cond)
	if one {
		q = fmt.Sprintf(`delete from %[1]s where id = (select id from %[1]s where %[2]s order by ord limit 1)`, tbl, cond)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteOne(ctx context.Context, collection string, f store.Filter) (int64, error) {
	return s.delete(ctx, collection, f, true)
}

func (s *Store) DeleteMany(ctx context.Context, collection string, f store.Filter) (int64, error) {
	return s.delete(ctx, collection, f, false)
}

func (s *Store) CountDocuments(ctx context.Context, collection string, f store.Filter) (int64, error) {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	cond, args, err := where(f, 0)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`select count(*) from %s where %s`, tbl, cond), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *Store) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	tbl, err := s.bareTable(ctx, collection)
	if err != nil {
		return err
	}
	ddl, err := indexDDL(s.schema, tbl, field, unique)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, ddl)
	if uniqueViolation(err) {
		return fmt.Errorf("%w: existing documents in %s repeat %s", store.ErrDuplicateKey, collection, field)
	}
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("create index %s.%s: %w", collection, field, err)
	}
	return nil
}

// Next — атомарный upsert: конкурирующие вызовы сериализуются на строке объекта.
func (s *Store) Next(ctx context.Context, objectID string) (int64, error) {
	q := fmt.Sprintf(`insert into %s as seq (object_id, value) values ($1, 1)
on conflict (object_id) do update set value = seq.value + 1
returning value`, qualified(s.schema, SequencesTable))
	var n int64
	if err := s.db.QueryRowContext(ctx, q, objectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", objectID, err)
	}
	return n, nil
}

func (s *Store) Close() error { return s.db.Close() }
