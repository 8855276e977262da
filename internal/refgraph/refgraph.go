// Package refgraph решает, создаёт ли новое ребро ReferenceField -> поле цикл.
// Граф не хранится: цепочка пересчитывается обходом от цели нового ребра.
package refgraph

import (
	"context"
	"fmt"
	"sort"

	"recordkit/internal/schema"
)

// Node — пара (объект, поле).
type Node struct {
	Object string
	Field  string
}

func (n Node) String() string { return n.Object + "." + n.Field }

// Edge — ссылка From -> To.
type Edge struct {
	From Node
	To   Node
}

// Lookup отдаёт цель ReferenceField-поля. ok=false — поле терминальное
// (не ссылка на поле) или не существует.
type Lookup interface {
	Target(ctx context.Context, n Node) (next Node, ok bool, err error)
}

// LookupFunc адаптирует функцию к Lookup.
type LookupFunc func(ctx context.Context, n Node) (Node, bool, error)

func (f LookupFunc) Target(ctx context.Context, n Node) (Node, bool, error) { return f(ctx, n) }

// Chain обходит ссылки от start, пока не встретит терминальное поле или stop.
// maxHops ограничивает число разных объектов на цепочке (считая объект start);
// переходы туда-обратно между уже встреченными объектами не считаются.
// Повторный визит узла значит, что данные уже зациклены. Оба случая — ErrReferenceChainTooDeep.
func Chain(ctx context.Context, l Lookup, start, stop Node, maxHops int) ([]Node, error) {
	path := []Node{start}
	visited := map[Node]bool{start: true}
	objects := map[string]bool{start.Object: true}
	for cur := start; cur != stop; {
		next, ok, err := l.Target(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", cur, err)
		}
		if !ok {
			break
		}
		objects[next.Object] = true
		if len(objects) > maxHops {
			return nil, schema.Errorf(schema.ErrReferenceChainTooDeep, start.Field, start.String(),
				"chain from %s spans more than %d objects", start, maxHops)
		}
		if visited[next] {
			return nil, schema.Errorf(schema.ErrReferenceChainTooDeep, start.Field, start.String(),
				"chain from %s revisits %s", start, next)
		}
		visited[next] = true
		path = append(path, next)
		cur = next
	}
	return path, nil
}

// HasCycle строит смежность из цепочки path и нового ребра e и ищет цикл DFS
// со стеком рекурсии.
func HasCycle(path []Node, e Edge) bool {
	if e.From == e.To {
		return true
	}
	adj := make(map[Node][]Node, len(path)+1)
	for i := 0; i+1 < len(path); i++ {
		adj[path[i]] = append(adj[path[i]], path[i+1])
	}
	adj[e.From] = append(adj[e.From], e.To)

	nodes := make([]Node, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })

	visited := make(map[Node]bool, len(adj))
	onStack := make(map[Node]bool, len(adj))
	var dfs func(n Node) bool
	dfs = func(n Node) bool {
		visited[n] = true
		onStack[n] = true
		for _, m := range adj[n] {
			if onStack[m] {
				return true
			}
			if !visited[m] && dfs(m) {
				return true
			}
		}
		onStack[n] = false
		return false
	}
	for _, n := range nodes {
		if !visited[n] && dfs(n) {
			return true
		}
	}
	return false
}

// CreatesCycle — true, если добавление e замкнёт цепочку ссылок.
// Исходящее ребро e.From (если поле уже ссылается куда-то) считается заменённым на e.
func CreatesCycle(ctx context.Context, l Lookup, e Edge, maxHops int) (bool, error) {
	if e.From == e.To {
		return true, nil
	}
	path, err := Chain(ctx, l, e.To, e.From, maxHops)
	if err != nil {
		return false, err
	}
	return HasCycle(path, e), nil
}
