// Package sqlite — встраиваемый бэкенд документного хранилища: таблица на
// коллекцию, документ в JSON-колонке, фильтры через json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"recordkit/internal/store"
)

const sequencesTable = "sequences"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Store struct {
	db *sql.DB

	mu    sync.Mutex
	ready map[string]string
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.Sequencer = (*Store)(nil)
)

// Open открывает базу по пути (":memory:" для тестов) и создаёт таблицу последовательностей.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// один писатель; для :memory: ещё и одна общая база
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ready: make(map[string]string)}
	ddl := fmt.Sprintf(`create table if not exists %q (object_id text primary key, value integer not null)`, sequencesTable)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) table(ctx context.Context, collection string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.ready[collection]; ok {
		return t, nil
	}
	t := strings.ToLower(collection)
	if !identRe.MatchString(t) {
		return "", fmt.Errorf("collection name %q is not a safe identifier", collection)
	}
	if t == sequencesTable {
		t = "e_" + t
	}
	ddl := fmt.Sprintf(`create table if not exists %q (id text primary key, doc text not null)`, t)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("create collection %s: %w", collection, err)
	}
	s.ready[collection] = t
	return t, nil
}

func jsonPath(key string) string { return `$."` + key + `"` }

// where: nil совпадает с null и с отсутствующим ключом, bool хранится в json1 как 0/1,
// вложенные значения сравниваются по каноничному JSON.
func where(f store.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "1", nil, nil
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
	for _, k := range keys {
		v := f[k]
		if k == store.KeyField {
			conds = append(conds, "id = ?")
			args = append(args, v)
			continue
		}
		switch t := v.(type) {
		case nil:
			conds = append(conds, "json_extract(doc, ?) is null")
			args = append(args, jsonPath(k))
		case bool:
			n := 0
			if t {
				n = 1
			}
			conds = append(conds, "json_extract(doc, ?) = ?")
			args = append(args, jsonPath(k), n)
		case string, int, int64, float64:
			conds = append(conds, "json_extract(doc, ?) = ?")
			args = append(args, jsonPath(k), t)
		default:
			b, err := canonical(t)
			if err != nil {
				return "", nil, fmt.Errorf("encode filter: %w", err)
			}
			conds = append(conds, "json_extract(doc, ?) = json(?)")
			args = append(args, jsonPath(k), string(b))
		}
	}
	return strings.Join(conds, " and "), args, nil
}

// canonical кодирует значение так же, как оно лежит в документе: через map[string]any,
// то есть с ключами по алфавиту, а не в порядке полей структуры.
func canonical(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func isUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (s *Store) find(ctx context.Context, collection string, f store.Filter, limit int) ([]store.Document, error) {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	cond, args, err := where(f)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`select doc from %q where %s order by rowid`, tbl, cond)
	if limit > 0 {
		q += fmt.Sprintf(" limit %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d store.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
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
	b, err := canonical(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = x.ExecContext(ctx, fmt.Sprintf(`insert into %q (id, doc) values (?, ?)`, tbl), id, string(b))
	if isUnique(err) {
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

// UpdateOne сливает set в документ через json_patch: null в set убирает ключ.
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
	b, err := canonical(patch)
	if err != nil {
		return 0, fmt.Errorf("encode update: %w", err)
	}
	cond, args, err := where(f)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`update %[1]q set doc = json_patch(doc, ?) where rowid = (select rowid from %[1]q where %[2]s order by rowid limit 1)`, tbl, cond)
	res, err := s.db.ExecContext(ctx, q, append([]any{string(b)}, args...)...)
	if isUnique(err) {
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
	cond, args, err := where(f)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`delete from %q where %s`, tbl, cond)
	if one {
		q = fmt.Sprintf(`delete from %[1]q where rowid = (select rowid from %[1]q where %[2]s order by rowid limit 1)`, tbl, cond)
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
	cond, args, err := where(f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`select count(*) from %q where %s`, tbl, cond), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *Store) CreateIndex(ctx context.Context, collection, field string, unique bool) error {
	tbl, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	f := strings.ToLower(field)
	if !identRe.MatchString(f) {
		return fmt.Errorf("index field %q is not a safe identifier", field)
	}
	kind, suffix := "index", "ix"
	if unique {
		kind, suffix = "unique index", "uq"
	}
	ddl := fmt.Sprintf(`create %s if not exists %q on %q (json_extract(doc, '%s'))`,
		kind, tbl+"_"+f+"_"+suffix, tbl, jsonPath(f))
	_, err = s.db.ExecContext(ctx, ddl)
	if isUnique(err) {
		return fmt.Errorf("%w: existing documents in %s repeat %s", store.ErrDuplicateKey, collection, field)
	}
	if err != nil {
		return fmt.Errorf("create index %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *Store) Next(ctx context.Context, objectID string) (int64, error) {
	q := fmt.Sprintf(`insert into %[1]q (object_id, value) values (?, 1)
on conflict (object_id) do update set value = value + 1
returning value`, sequencesTable)
	var n int64
	if err := s.db.QueryRowContext(ctx, q, objectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", objectID, err)
	}
	return n, nil
}
