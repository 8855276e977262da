// Package field — каталог полей: определение и изменение типизированных полей
// объекта, проверка атрибутов и ссылочных цепочек, разрешение значений записей.
package field

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recordkit/internal/refgraph"
	"recordkit/internal/reference"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

// сколько раз пробуем сгенерировать свободный токен
const tokenAttempts = 8

type Catalog struct {
	store   store.Store
	options reference.Catalog
	log     zerolog.Logger
	suffix  func() int
}

type Option func(*Catalog)

func WithLogger(l zerolog.Logger) Option { return func(c *Catalog) { c.log = l } }

// WithOptionCatalog подключает справочники для select-полей с options_ref.
func WithOptionCatalog(rc reference.Catalog) Option { return func(c *Catalog) { c.options = rc } }

// WithSuffix подменяет генератор трёхзначного суффикса токенов.
func WithSuffix(f func() int) Option { return func(c *Catalog) { c.suffix = f } }

func New(s store.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:  s,
		log:    zerolog.Nop(),
		suffix: func() int { return rand.IntN(1000) },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Catalog) object(ctx context.Context, id string) (*schema.Object, error) {
	doc, err := c.store.FindOne(ctx, schema.ObjectsCollection, store.Filter{store.KeyField: id})
	if errors.Is(err, store.ErrNoDocument) {
		return nil, schema.Errorf(schema.ErrObjectNotFound, "", id, "object %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load object %s: %w", id, err)
	}
	var o schema.Object
	if err := store.Decode(doc, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetField возвращает поле объекта по токену.
func (c *Catalog) GetField(ctx context.Context, objectID, token string) (*schema.Field, error) {
	doc, err := c.store.FindOne(ctx, schema.FieldsCollection, store.Filter{"object_id": objectID, "token": token})
	if errors.Is(err, store.ErrNoDocument) {
		return nil, schema.Errorf(schema.ErrFieldNotFound, token, token, "field %q not found on %s", token, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load field %s.%s: %w", objectID, token, err)
	}
	var f schema.Field
	if err := store.Decode(doc, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFields — поля объекта по sort_index.
func (c *Catalog) ListFields(ctx context.Context, objectID string) ([]schema.Field, error) {
	docs, err := c.store.Find(ctx, schema.FieldsCollection, store.Filter{"object_id": objectID})
	if err != nil {
		return nil, fmt.Errorf("list fields of %s: %w", objectID, err)
	}
	out := make([]schema.Field, 0, len(docs))
	for _, d := range docs {
		var f schema.Field
		if err := store.Decode(d, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out, nil
}

// IdentityField — identity-поле объекта или nil.
func (c *Catalog) IdentityField(ctx context.Context, objectID string) (*schema.Field, error) {
	doc, err := c.store.FindOne(ctx, schema.FieldsCollection,
		store.Filter{"object_id": objectID, "type": string(schema.TypeIdentity)})
	if errors.Is(err, store.ErrNoDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f schema.Field
	if err := store.Decode(doc, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DefineField добавляет поле в конец списка полей объекта.
func (c *Catalog) DefineField(ctx context.Context, objectID string, spec schema.FieldSpec) (*schema.Field, error) {
	n, err := c.store.CountDocuments(ctx, schema.FieldsCollection, store.Filter{"object_id": objectID})
	if err != nil {
		return nil, err
	}
	return c.DefineFieldAt(ctx, objectID, spec, int(n))
}

// DefineFieldAt — DefineField с явным sort_index.
func (c *Catalog) DefineFieldAt(ctx context.Context, objectID string, spec schema.FieldSpec, sortIndex int) (*schema.Field, error) {
	obj, err := c.object(ctx, objectID)
	if err != nil {
		return nil, err
	}
	kind, err := c.prepareKind(spec)
	if err != nil {
		return nil, err
	}

	token, err := c.pickToken(ctx, objectID, spec)
	if err != nil {
		return nil, err
	}

	if _, ok := kind.(schema.Identity); ok {
		existing, err := c.IdentityField(ctx, objectID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, schema.Errorf(schema.ErrDuplicateIdentityField, token, nil,
				"object %s already has identity field %s", objectID, existing.Token)
		}
	}
	if err := c.checkTargets(ctx, refgraph.Node{Object: objectID, Field: token}, kind); err != nil {
		return nil, err
	}

	f := &schema.Field{
		ObjectID:  objectID,
		Token:     token,
		Name:      spec.Name,
		SortIndex: sortIndex,
		Kind:      kind,
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating field id: %w", err)
	}
	f.ID = id.String()

	if err := c.bumpSchema(ctx, obj); err != nil {
		return nil, err
	}
	doc, err := store.Encode(f)
	if err != nil {
		return nil, err
	}
	if err := c.store.InsertOne(ctx, schema.FieldsCollection, doc); err != nil {
		return nil, fmt.Errorf("persist field %s.%s: %w", objectID, token, err)
	}
	if _, ok := kind.(schema.Identity); ok {
		// display id уникален в коллекции записей
		if err := c.store.CreateIndex(ctx, objectID, token, true); err != nil {
			return nil, fmt.Errorf("index identity %s.%s: %w", objectID, token, err)
		}
	}
	c.log.Debug().Str("object", objectID).Str("field", token).Str("type", string(kind.Type())).Msg("field defined")
	return f, nil
}

// UpdateField меняет имя и атрибуты поля. Тип не меняется: смена типа — удалить и создать заново.
func (c *Catalog) UpdateField(ctx context.Context, objectID, token string, spec schema.FieldSpec) (*schema.Field, error) {
	obj, err := c.object(ctx, objectID)
	if err != nil {
		return nil, err
	}
	cur, err := c.GetField(ctx, objectID, token)
	if err != nil {
		return nil, err
	}
	kind, err := c.prepareKind(spec)
	if err != nil {
		return nil, err
	}
	if kind.Type() != cur.Type() {
		return nil, schema.Errorf(schema.ErrInvalidFieldSpec, token, kind.Type(),
			"type of %s is %s; delete and recreate the field to change it", token, cur.Type())
	}
	if err := c.checkTargets(ctx, refgraph.Node{Object: objectID, Field: token}, kind); err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = cur.Name
	}
	upd := *cur
	upd.Name, upd.Kind = name, kind

	if err := c.bumpSchema(ctx, obj); err != nil {
		return nil, err
	}
	doc, err := store.Encode(upd)
	if err != nil {
		return nil, err
	}
	delete(doc, store.KeyField)
	if _, err := c.store.UpdateOne(ctx, schema.FieldsCollection, store.Filter{store.KeyField: cur.ID}, doc); err != nil {
		return nil, fmt.Errorf("update field %s.%s: %w", objectID, token, err)
	}
	return &upd, nil
}

// DeleteField удаляет поле, если на него не ссылается ни одно ReferenceField-поле.
func (c *Catalog) DeleteField(ctx context.Context, objectID, token string) error {
	obj, err := c.object(ctx, objectID)
	if err != nil {
		return err
	}
	f, err := c.GetField(ctx, objectID, token)
	if err != nil {
		return err
	}
	incoming, err := c.store.Find(ctx, schema.FieldsCollection,
		store.Filter{"target_object": objectID, "target_field": token})
	if err != nil {
		return err
	}
	if len(incoming) > 0 {
		from, _ := incoming[0]["object_id"].(string)
		via, _ := incoming[0]["token"].(string)
		return schema.Errorf(schema.ErrSchemaConflict, token, nil, "field is referenced by %s.%s", from, via)
	}
	if err := c.bumpSchema(ctx, obj); err != nil {
		return err
	}
	if _, err := c.store.DeleteOne(ctx, schema.FieldsCollection, store.Filter{store.KeyField: f.ID}); err != nil {
		return fmt.Errorf("delete field %s.%s: %w", objectID, token, err)
	}
	return nil
}

// DeleteFieldsByObject удаляет все поля объекта разом.
func (c *Catalog) DeleteFieldsByObject(ctx context.Context, objectID string) (int64, error) {
	n, err := c.store.DeleteMany(ctx, schema.FieldsCollection, store.Filter{"object_id": objectID})
	if err != nil {
		return n, fmt.Errorf("delete fields of %s: %w", objectID, err)
	}
	return n, nil
}

// prepareKind подставляет options из справочника и нормализует атрибуты.
func (c *Catalog) prepareKind(spec schema.FieldSpec) (schema.Kind, error) {
	kind := spec.Kind
	if sel, ok := kind.(schema.Select); ok && sel.OptionsRef != "" && len(sel.Options) == 0 {
		opts, found := c.options.Options(sel.OptionsRef)
		if !found {
			return nil, schema.Errorf(schema.ErrInvalidFieldSpec, spec.Token, sel.OptionsRef,
				"unknown option catalog %q", sel.OptionsRef)
		}
		sel.Options = opts
		kind = sel
	}
	return schema.NormalizeSpec(spec.Token, kind)
}

func (c *Catalog) pickToken(ctx context.Context, objectID string, spec schema.FieldSpec) (string, error) {
	if spec.Token != "" {
		if !schema.ValidToken(spec.Token) {
			return "", schema.Errorf(schema.ErrInvalidFieldSpec, spec.Token, spec.Token,
				"token must match fd_[a-z0-9_]{1,56}")
		}
		taken, err := c.tokenTaken(ctx, objectID, spec.Token)
		if err != nil {
			return "", err
		}
		if taken {
			return "", schema.Errorf(schema.ErrInvalidFieldSpec, spec.Token, spec.Token, "token already used on %s", objectID)
		}
		return spec.Token, nil
	}
	for i := 0; i < tokenAttempts; i++ {
		token := schema.FieldToken(spec.Name, c.suffix())
		taken, err := c.tokenTaken(ctx, objectID, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", schema.Errorf(schema.ErrSchemaConflict, "", spec.Name, "no free token for %q after %d attempts", spec.Name, tokenAttempts)
}

func (c *Catalog) tokenTaken(ctx context.Context, objectID, token string) (bool, error) {
	n, err := c.store.CountDocuments(ctx, schema.FieldsCollection, store.Filter{"object_id": objectID, "token": token})
	return n > 0, err
}

// bumpSchema — оптимистичная блокировка списка полей объекта.
func (c *Catalog) bumpSchema(ctx context.Context, obj *schema.Object) error {
	n, err := c.store.UpdateOne(ctx, schema.ObjectsCollection,
		store.Filter{store.KeyField: obj.ID, "schema_version": obj.SchemaVersion},
		store.Document{"schema_version": obj.SchemaVersion + 1})
	if err != nil {
		return fmt.Errorf("bump schema version of %s: %w", obj.ID, err)
	}
	if n == 0 {
		return schema.Errorf(schema.ErrSchemaConflict, "", obj.ID,
			"fields of %s changed concurrently; reload and retry", obj.ID)
	}
	obj.SchemaVersion++
	return nil
}
