package field

import (
	"context"
	"errors"

	"recordkit/internal/refgraph"
	"recordkit/internal/schema"
)

// checkTargets проверяет, что цели ссылочного поля существуют и новое ребро не замыкает цикл.
func (c *Catalog) checkTargets(ctx context.Context, self refgraph.Node, kind schema.Kind) error {
	switch k := kind.(type) {
	case schema.ReferenceObject:
		_, err := c.object(ctx, k.TargetObject)
		return err
	case schema.ReferenceField:
		if _, err := c.object(ctx, k.TargetObject); err != nil {
			return err
		}
		if _, err := c.GetField(ctx, k.TargetObject, k.TargetField); err != nil {
			if errors.Is(err, schema.ErrFieldNotFound) {
				return schema.Errorf(schema.ErrReferenceFieldNotFound, self.Field, k.Path(),
					"target field %s does not exist", k.Path())
			}
			return err
		}
		objects, err := c.store.CountDocuments(ctx, schema.ObjectsCollection, nil)
		if err != nil {
			return err
		}
		edge := refgraph.Edge{From: self, To: refgraph.Node{Object: k.TargetObject, Field: k.TargetField}}
		loop, err := refgraph.CreatesCycle(ctx, c.graph(), edge, int(objects))
		if err != nil {
			return err
		}
		if loop {
			return schema.Errorf(schema.ErrInfiniteReferenceLoop, self.Field, k.Path(),
				"%s -> %s closes a reference loop", self, edge.To)
		}
	}
	return nil
}

// graph — текущие ReferenceField-рёбра, читаемые из хранилища на каждый шаг обхода.
func (c *Catalog) graph() refgraph.Lookup {
	return refgraph.LookupFunc(func(ctx context.Context, n refgraph.Node) (refgraph.Node, bool, error) {
		f, err := c.GetField(ctx, n.Object, n.Field)
		if errors.Is(err, schema.ErrFieldNotFound) {
			return refgraph.Node{}, false, nil
		}
		if err != nil {
			return refgraph.Node{}, false, err
		}
		rf, ok := f.Kind.(schema.ReferenceField)
		if !ok {
			return refgraph.Node{}, false, nil
		}
		return refgraph.Node{Object: rf.TargetObject, Field: rf.TargetField}, true, nil
	})
}
