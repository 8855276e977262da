package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Memory — хранилище в памяти. Документы хранятся сериализованными,
// поэтому типы значений после чтения такие же, как у jsonb/json1 бэкендов.
type Memory struct {
	mu      sync.RWMutex
	colls   map[string]*memColl
	seqs    map[string]int64
	ordinal int64
}

type memColl struct {
	docs    map[string]memDoc
	uniques map[string]bool
}

type memDoc struct {
	raw []byte
	ord int64 // порядок вставки, для стабильного Find
}

var (
	_ Store     = (*Memory)(nil)
	_ Sequencer = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{colls: make(map[string]*memColl), seqs: make(map[string]int64)}
}

func (m *Memory) coll(name string) *memColl {
	c := m.colls[name]
	if c == nil {
		c = &memColl{docs: make(map[string]memDoc), uniques: make(map[string]bool)}
		m.colls[name] = c
	}
	return c
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

func matches(d Document, f Filter) bool {
	for k, want := range f {
		got, ok := d[k]
		if !ok {
			if want != nil {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func normalizeFilter(f Filter) (Filter, error) {
	if len(f) == 0 {
		return f, nil
	}
	n, err := normalize(map[string]any(f))
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return Filter(n.(map[string]any)), nil
}

// scan возвращает совпавшие документы в порядке вставки. Вызывать под мьютексом.
func (m *Memory) scan(collection string, f Filter, limit int) ([]string, []Document, error) {
	c := m.colls[collection]
	if c == nil {
		return nil, nil, nil
	}
	nf, err := normalizeFilter(f)
	if err != nil {
		return nil, nil, err
	}
	type hit struct {
		id  string
		ord int64
		doc Document
	}
	var hits []hit
	for id, md := range c.docs {
		var d Document
		if err := json.Unmarshal(md.raw, &d); err != nil {
			return nil, nil, err
		}
		if matches(d, nf) {
			hits = append(hits, hit{id, md.ord, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ord < hits[j].ord })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	docs := make([]Document, len(hits))
	for i, h := range hits {
		ids[i], docs[i] = h.id, h.doc
	}
	return ids, docs, nil
}

func (m *Memory) FindOne(_ context.Context, collection string, f Filter) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, docs, err := m.scan(collection, f, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocument
	}
	return docs[0], nil
}

func (m *Memory) Find(_ context.Context, collection string, f Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, docs, err := m.scan(collection, f, 0)
	return docs, err
}

// checkUnique — нарушает ли d уникальные индексы коллекции (кроме документа skipID).
func (m *Memory) checkUnique(c *memColl, d Document, skipID string) error {
	for field := range c.uniques {
		v, ok := d[field]
		if !ok || v == nil {
			continue
		}
		for id, md := range c.docs {
			if id == skipID {
				continue
			}
			var other Document
			if err := json.Unmarshal(md.raw, &other); err != nil {
				return err
			}
			if reflect.DeepEqual(other[field], v) {
				return fmt.Errorf("%w: %s=%v", ErrDuplicateKey, field, v)
			}
		}
	}
	return nil
}

func (m *Memory) insertLocked(collection string, doc Document) error {
	n, err := normalize(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	d := Document(n.(map[string]any))
	id, err := KeyOf(d)
	if err != nil {
		return err
	}
	c := m.coll(collection)
	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("%w: _id=%s", ErrDuplicateKey, id)
	}
	if err := m.checkUnique(c, d, ""); err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	m.ordinal++
	c.docs[id] = memDoc{raw: raw, ord: m.ordinal}
	return nil
}

func (m *Memory) InsertOne(_ context.Context, collection string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(collection, doc)
}

// InsertMany вставляет все документы или ни одного.
func (m *Memory) InsertMany(_ context.Context, collection string, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var done []string
	for _, d := range docs {
		if err := m.insertLocked(collection, d); err != nil {
			for _, id := range done {
				delete(m.colls[collection].docs, id)
			}
			return err
		}
		id, _ := KeyOf(d)
		done = append(done, id)
	}
	return nil
}

func (m *Memory) UpdateOne(_ context.Context, collection string, f Filter, set Document) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, docs, err := m.scan(collection, f, 1)
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	ns, err := normalize(map[string]any(set))
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	d := docs[0]
	for k, v := range ns.(map[string]any) {
		if k == KeyField {
			continue
		}
		d[k] = v
	}
	c := m.colls[collection]
	if err := m.checkUnique(c, d, ids[0]); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return 0, err
	}
	c.docs[ids[0]] = memDoc{raw: raw, ord: c.docs[ids[0]].ord}
	return 1, nil
}

func (m *Memory) delete(collection string, f Filter, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, _, err := m.scan(collection, f, limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		delete(m.colls[collection].docs, id)
	}
	return int64(len(ids)), nil
}

func (m *Memory) DeleteOne(_ context.Context, collection string, f Filter) (int64, error) {
	return m.delete(collection, f, 1)
}

func (m *Memory) DeleteMany(_ context.Context, collection string, f Filter) (int64, error) {
	return m.delete(collection, f, 0)
}

func (m *Memory) CountDocuments(_ context.Context, collection string, f Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, _, err := m.scan(collection, f, 0)
	return int64(len(ids)), err
}

// CreateIndex в памяти имеет смысл только для unique.
func (m *Memory) CreateIndex(_ context.Context, collection, field string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if unique {
		m.coll(collection).uniques[field] = true
	}
	return nil
}

func (m *Memory) Next(_ context.Context, objectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[objectID]++
	return m.seqs[objectID], nil
}
