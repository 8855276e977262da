package dsl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/schema"
)

// errDeferred: цель ссылки ещё не создана в этом apply.
var errDeferred = errors.New("reference target not created yet")

// Applier создаёт объекты и поля из DSL через каталоги. Повторный apply того же
// файла ничего не меняет: существующие объекты и поля пропускаются.
type Applier struct {
	objects *object.Catalog
	fields  *field.Catalog
	log     zerolog.Logger
}

func NewApplier(objects *object.Catalog, fields *field.Catalog, log zerolog.Logger) *Applier {
	return &Applier{objects: objects, fields: fields, log: log}
}

type Report struct {
	Created []string // id созданных объектов
	Fields  int      // определено полей
	Skipped int      // полей, которые уже были
}

type pending struct {
	obj      *Object
	objectID string
	field    Field
}

func (a *Applier) Apply(ctx context.Context, objs []*Object, actor string) (*Report, error) {
	rep := &Report{}
	ids := map[string]string{}
	inBatch := map[string]bool{}
	for _, o := range objs {
		inBatch[strings.ToLower(o.Name)] = true
	}

	resolve := func(name string) (string, error) {
		key := strings.ToLower(name)
		if id, ok := ids[key]; ok {
			return id, nil
		}
		if inBatch[key] {
			return "", errDeferred
		}
		o, err := a.objects.FindObjectByName(ctx, name)
		if err != nil {
			return "", fmt.Errorf("ref target %q: %w", name, err)
		}
		ids[key] = o.ID
		return o.ID, nil
	}

	var later []pending
	deferredTokens := map[string]bool{}

	for _, o := range objs {
		key := strings.ToLower(o.Name)
		existing, err := a.objects.FindObjectByName(ctx, o.Name)
		if err == nil {
			ids[key] = existing.ID
			for _, f := range o.Fields {
				if _, err := a.fields.GetField(ctx, existing.ID, f.Token()); errors.Is(err, schema.ErrFieldNotFound) {
					deferredTokens[existing.ID+"."+f.Token()] = true
				}
				later = append(later, pending{o, existing.ID, f})
			}
			continue
		}
		if !errors.Is(err, schema.ErrObjectNotFound) {
			return rep, err
		}

		var specs []schema.FieldSpec
		var deferred []Field
		for _, f := range o.Fields {
			spec, err := f.Spec(resolve)
			if errors.Is(err, errDeferred) || (err == nil && dependsOnDeferred(spec, deferredTokens)) {
				deferred = append(deferred, f)
				continue
			}
			if err != nil {
				return rep, fmt.Errorf("%s: %w", o.Source, err)
			}
			specs = append(specs, spec)
		}

		created, _, err := a.objects.CreateObjectWithFields(ctx, o.Name, o.Group, actor, specs)
		if err != nil {
			return rep, fmt.Errorf("%s: create %s: %w", o.Source, o.Name, err)
		}
		ids[key] = created.ID
		rep.Created = append(rep.Created, created.ID)
		rep.Fields += len(specs)
		for _, f := range deferred {
			deferredTokens[created.ID+"."+f.Token()] = true
			later = append(later, pending{o, created.ID, f})
		}
		a.log.Info().Str("object", created.ID).Str("name", o.Name).Int("fields", len(specs)).Msg("object applied")
	}

	// отложенные поля могут ссылаться друг на друга в любом порядке:
	// повторяем проходы, пока каждый создаёт хотя бы одно поле
	for len(later) > 0 {
		var (
			retry   []pending
			lastErr error
		)
		for _, p := range later {
			err := a.definePending(ctx, p, resolve, rep)
			if errors.Is(err, schema.ErrReferenceFieldNotFound) {
				retry = append(retry, p)
				lastErr = err
				continue
			}
			if err != nil {
				return rep, err
			}
		}
		if len(retry) == len(later) {
			return rep, lastErr
		}
		later = retry
	}
	return rep, nil
}

// definePending определяет отложенное поле, если его ещё нет.
func (a *Applier) definePending(ctx context.Context, p pending, resolve func(string) (string, error), rep *Report) error {
	_, err := a.fields.GetField(ctx, p.objectID, p.field.Token())
	if err == nil {
		rep.Skipped++
		return nil
	}
	if !errors.Is(err, schema.ErrFieldNotFound) {
		return err
	}
	spec, err := p.field.Spec(resolve)
	if err != nil {
		return fmt.Errorf("%s: %w", p.obj.Source, err)
	}
	if _, err := a.fields.DefineField(ctx, p.objectID, spec); err != nil {
		return fmt.Errorf("%s: define %s.%s: %w", p.obj.Source, p.obj.Name, p.field.Name, err)
	}
	rep.Fields++
	return nil
}

func dependsOnDeferred(spec schema.FieldSpec, deferred map[string]bool) bool {
	rf, ok := spec.Kind.(schema.ReferenceField)
	return ok && deferred[rf.TargetObject+"."+rf.TargetField]
}
