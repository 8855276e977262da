// Package object — каталог объектов тенанта: создание (в том числе вместе с полями),
// порядок, удаление и подметание незавершённых созданий.
package object

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"recordkit/internal/field"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

const idAttempts = 8

type Catalog struct {
	store  store.Store
	fields *field.Catalog
	log    zerolog.Logger
	suffix func() int
	now    func() time.Time
}

type Option func(*Catalog)

func WithLogger(l zerolog.Logger) Option  { return func(c *Catalog) { c.log = l } }
func WithSuffix(f func() int) Option      { return func(c *Catalog) { c.suffix = f } }
func WithClock(f func() time.Time) Option { return func(c *Catalog) { c.now = f } }

func New(s store.Store, fields *field.Catalog, opts ...Option) *Catalog {
	c := &Catalog{
		store:  s,
		fields: fields,
		log:    zerolog.Nop(),
		suffix: func() int { return rand.IntN(1000) },
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureIndexes создаёт индексы метаданных. Идемпотентно.
func (c *Catalog) EnsureIndexes(ctx context.Context) error {
	if err := c.store.CreateIndex(ctx, schema.ObjectsCollection, "slug", true); err != nil {
		return fmt.Errorf("index objects.slug: %w", err)
	}
	if err := c.store.CreateIndex(ctx, schema.FieldsCollection, "object_id", false); err != nil {
		return fmt.Errorf("index fields.object_id: %w", err)
	}
	return nil
}

// CreateObject создаёт объект без полей.
func (c *Catalog) CreateObject(ctx context.Context, name, groupID, actor string) (*schema.Object, error) {
	return c.create(ctx, name, groupID, actor, false)
}

// CreateObjectWithFields создаёт объект и его поля в порядке specs.
// Объект помечен Uncommitted, пока все поля не определены. При ошибке поля
// объект удаляется; если и это не удалось, его подберёт SweepUncommitted.
func (c *Catalog) CreateObjectWithFields(ctx context.Context, name, groupID, actor string, specs []schema.FieldSpec) (*schema.Object, []schema.Field, error) {
	obj, err := c.create(ctx, name, groupID, actor, true)
	if err != nil {
		return nil, nil, err
	}
	fields := make([]schema.Field, 0, len(specs))
	for i, spec := range specs {
		f, err := c.fields.DefineFieldAt(ctx, obj.ID, spec, i)
		if err != nil {
			c.rollback(ctx, obj.ID, err)
			return nil, nil, err
		}
		fields = append(fields, *f)
	}
	if _, err := c.store.UpdateOne(ctx, schema.ObjectsCollection,
		store.Filter{store.KeyField: obj.ID}, store.Document{"uncommitted": false}); err != nil {
		err = fmt.Errorf("commit object %s: %w", obj.ID, err)
		c.rollback(ctx, obj.ID, err)
		return nil, nil, err
	}
	obj.Uncommitted = false
	obj.SchemaVersion += int64(len(specs))
	return obj, fields, nil
}

func (c *Catalog) rollback(ctx context.Context, id string, cause error) {
	if err := c.purge(ctx, id); err != nil {
		c.log.Warn().Err(err).Str("object", id).AnErr("cause", cause).
			Msg("rollback failed; object left uncommitted for sweep")
		return
	}
	c.log.Info().Str("object", id).AnErr("cause", cause).Msg("object creation rolled back")
}

func (c *Catalog) purge(ctx context.Context, id string) error {
	if _, err := c.fields.DeleteFieldsByObject(ctx, id); err != nil {
		return err
	}
	_, err := c.store.DeleteOne(ctx, schema.ObjectsCollection, store.Filter{store.KeyField: id})
	return err
}

func (c *Catalog) create(ctx context.Context, name, groupID, actor string, uncommitted bool) (*schema.Object, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.Errorf(schema.ErrValidationFailed, "name", name, "object name is required")
	}
	id, err := c.freeID(ctx, name)
	if err != nil {
		return nil, err
	}
	n, err := c.store.CountDocuments(ctx, schema.ObjectsCollection, store.Filter{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	obj := &schema.Object{
		ID:          id,
		Name:        name,
		Slug:        schema.Slugify(name),
		GroupID:     groupID,
		SortIndex:   int(n),
		Uncommitted: uncommitted,
		CreatedBy:   actor,
		CreatedAt:   c.now(),
	}
	doc, err := store.Encode(obj)
	if err != nil {
		return nil, err
	}
	if err := c.store.InsertOne(ctx, schema.ObjectsCollection, doc); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, schema.Errorf(schema.ErrSchemaConflict, "name", name, "object %q already exists", name)
		}
		return nil, fmt.Errorf("persist object %s: %w", id, err)
	}
	c.log.Debug().Str("object", id).Str("group", groupID).Msg("object created")
	return obj, nil
}

// freeID подбирает obj_<slug>_<NNN>, которого ещё нет в хранилище.
func (c *Catalog) freeID(ctx context.Context, name string) (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := schema.ObjectID(name, c.suffix())
		n, err := c.store.CountDocuments(ctx, schema.ObjectsCollection, store.Filter{store.KeyField: id})
		if err != nil {
			return "", err
		}
		if n == 0 {
			return id, nil
		}
	}
	return "", schema.Errorf(schema.ErrSchemaConflict, "name", name, "no free object id after %d attempts", idAttempts)
}

// GetObject возвращает объект; незавершённые объекты считаются отсутствующими.
func (c *Catalog) GetObject(ctx context.Context, id string) (*schema.Object, error) {
	return c.findOne(ctx, store.Filter{store.KeyField: id, "uncommitted": false}, id)
}

// FindObjectByName ищет объект по слагу имени.
func (c *Catalog) FindObjectByName(ctx context.Context, name string) (*schema.Object, error) {
	return c.findOne(ctx, store.Filter{"slug": schema.Slugify(name), "uncommitted": false}, name)
}

func (c *Catalog) findOne(ctx context.Context, f store.Filter, key string) (*schema.Object, error) {
	doc, err := c.store.FindOne(ctx, schema.ObjectsCollection, f)
	if errors.Is(err, store.ErrNoDocument) {
		return nil, schema.Errorf(schema.ErrObjectNotFound, "", key, "object %q not found", key)
	}
	if err != nil {
		return nil, err
	}
	var o schema.Object
	if err := store.Decode(doc, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListObjects — объекты группы (или все, если groupID пуст) по sort_index.
func (c *Catalog) ListObjects(ctx context.Context, groupID string) ([]schema.Object, error) {
	f := store.Filter{"uncommitted": false}
	if groupID != "" {
		f["group_id"] = groupID
	}
	docs, err := c.store.Find(ctx, schema.ObjectsCollection, f)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Object, 0, len(docs))
	for _, d := range docs {
		var o schema.Object
		if err := store.Decode(d, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].SortIndex < out[j].SortIndex
	})
	return out, nil
}

// MoveObject меняет sort_index — единственный изменяемый атрибут объекта.
func (c *Catalog) MoveObject(ctx context.Context, id string, sortIndex int, actor string) (*schema.Object, error) {
	if sortIndex < 0 {
		return nil, schema.Errorf(schema.ErrValidationFailed, "sort_index", sortIndex, "sort_index must not be negative")
	}
	obj, err := c.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if _, err := c.store.UpdateOne(ctx, schema.ObjectsCollection, store.Filter{store.KeyField: id},
		store.Document{"sort_index": sortIndex, "modified_by": actor, "modified_at": now}); err != nil {
		return nil, fmt.Errorf("move object %s: %w", id, err)
	}
	obj.SortIndex, obj.ModifiedBy, obj.ModifiedAt = sortIndex, actor, now
	return obj, nil
}

// DeleteObject удаляет поля объекта, затем сам объект. Записи не трогает.
// Отказывает, пока на объект ссылаются поля других объектов.
func (c *Catalog) DeleteObject(ctx context.Context, id string) error {
	if _, err := c.GetObject(ctx, id); err != nil {
		return err
	}
	incoming, err := c.store.Find(ctx, schema.FieldsCollection, store.Filter{"target_object": id})
	if err != nil {
		return err
	}
	for _, d := range incoming {
		if from, _ := d["object_id"].(string); from != id {
			via, _ := d["token"].(string)
			return schema.Errorf(schema.ErrSchemaConflict, "", id, "object is referenced by %s.%s", from, via)
		}
	}
	if _, err := c.fields.DeleteFieldsByObject(ctx, id); err != nil {
		return err
	}
	if _, err := c.store.DeleteOne(ctx, schema.ObjectsCollection, store.Filter{store.KeyField: id}); err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}
