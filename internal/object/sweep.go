package object

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"recordkit/internal/schema"
	"recordkit/internal/store"
)

// SweepUncommitted удаляет объекты, застрявшие в состоянии Uncommitted дольше olderThan,
// вместе с их полями. Возвращает число удалённых объектов.
func (c *Catalog) SweepUncommitted(ctx context.Context, olderThan time.Duration) (int, error) {
	docs, err := c.store.Find(ctx, schema.ObjectsCollection, store.Filter{"uncommitted": true})
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-olderThan)

	var swept atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, d := range docs {
		var o schema.Object
		if err := store.Decode(d, &o); err != nil {
			return 0, err
		}
		if o.CreatedAt.After(cutoff) {
			continue
		}
		g.Go(func() error {
			if err := c.purge(gctx, o.ID); err != nil {
				return err
			}
			swept.Add(1)
			c.log.Info().Str("object", o.ID).Time("created_at", o.CreatedAt).Msg("swept uncommitted object")
			return nil
		})
	}
	err = g.Wait()
	return int(swept.Load()), err
}
