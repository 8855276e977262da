package record

import (
	"context"
	"errors"

	"recordkit/internal/schema"
)

// step — одна позиция обхода: поле конкретной записи.
type step struct{ object, record, token string }

// Dereference идёт по ссылкам от поля token записи до конечного значения.
// Ссылка хранит только id цели и токен поля, поэтому результат всегда текущий.
// Обход ограничен числом объектов каталога и не заходит в одну позицию дважды.
func (e *Engine) Dereference(ctx context.Context, objectID, recordID, token string) (any, error) {
	maxHops, err := e.store.CountDocuments(ctx, schema.ObjectsCollection, nil)
	if err != nil {
		return nil, err
	}
	rec, err := e.GetRecord(ctx, objectID, recordID)
	if err != nil {
		return nil, err
	}
	f, err := e.fields.GetField(ctx, objectID, token)
	if err != nil {
		return nil, err
	}
	v := rec.Values[token]

	seen := map[step]bool{{objectID, recordID, token}: true}
	objects := map[string]bool{objectID: true}
	for {
		ref, ok := v.(schema.Ref)
		if !ok {
			return v, nil
		}
		target := targetObject(f.Kind)
		objects[target] = true
		if int64(len(objects)) > maxHops {
			return nil, schema.Errorf(schema.ErrReferenceChainTooDeep, token, ref.RefTo,
				"reference chain from %s.%s spans more than %d objects", objectID, token, maxHops)
		}
		at := step{target, ref.RefTo, ref.FieldValue}
		if seen[at] {
			return nil, schema.Errorf(schema.ErrReferenceChainTooDeep, token, ref.RefTo,
				"reference chain from %s.%s revisits %s.%s of %s", objectID, token, target, ref.FieldValue, ref.RefTo)
		}
		seen[at] = true
		next, err := e.GetRecord(ctx, target, ref.RefTo)
		if errors.Is(err, schema.ErrRecordNotFound) {
			return nil, schema.Errorf(schema.ErrReferenceNotFound, f.Token, ref.RefTo,
				"record %q not found in %s", ref.RefTo, target)
		}
		if err != nil {
			return nil, err
		}
		if ref.FieldValue == "" {
			// у цели нет identity-поля: отдаём id записи
			return next.ID, nil
		}
		nf, err := e.fields.GetField(ctx, target, ref.FieldValue)
		if errors.Is(err, schema.ErrFieldNotFound) {
			return nil, schema.Errorf(schema.ErrReferenceFieldNotFound, f.Token, target+"."+ref.FieldValue,
				"target field %s.%s no longer exists", target, ref.FieldValue)
		}
		if err != nil {
			return nil, err
		}
		f, v = nf, next.Values[ref.FieldValue]
	}
}

func targetObject(k schema.Kind) string {
	switch t := k.(type) {
	case schema.ReferenceObject:
		return t.TargetObject
	case schema.ReferenceField:
		return t.TargetObject
	}
	return ""
}
