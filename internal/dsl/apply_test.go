package dsl

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordkit/internal/field"
	"recordkit/internal/object"
	"recordkit/internal/reference"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

func newApplier(t *testing.T) (*Applier, *object.Catalog, *field.Catalog) {
	t.Helper()
	s := store.NewMemory()
	opts := reference.Catalog{"tiers": {Name: "tiers", Items: []reference.OptionItem{{Code: "gold"}, {Code: "silver"}}}}
	fields := field.New(s, field.WithOptionCatalog(opts))
	objects := object.New(s, fields)
	require.NoError(t, objects.EnsureIndexes(context.Background()))
	return NewApplier(objects, fields, zerolog.Nop()), objects, fields
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	a, objects, fields := newApplier(t)
	objs, err := Parse(strings.NewReader(crm), "crm.dsl")
	require.NoError(t, err)

	rep, err := a.Apply(ctx, objs, "admin")
	require.NoError(t, err)
	assert.Len(t, rep.Created, 2)
	assert.Equal(t, 12, rep.Fields)

	contact, err := objects.FindObjectByName(ctx, "Contact")
	require.NoError(t, err)
	deal, err := objects.FindObjectByName(ctx, "Deal")
	require.NoError(t, err)

	tier, err := fields.GetField(ctx, contact.ID, "fd_tier")
	require.NoError(t, err)
	assert.Equal(t, []string{"gold", "silver"}, tier.Kind.(schema.Select).Options)

	ref, err := fields.GetField(ctx, deal.ID, "fd_contact_name")
	require.NoError(t, err)
	assert.Equal(t, schema.ReferenceField{TargetObject: contact.ID, TargetField: "fd_name"}, ref.Kind)

	// повторный apply ничего не создаёт
	rep, err = a.Apply(ctx, objs, "admin")
	require.NoError(t, err)
	assert.Empty(t, rep.Created)
	assert.Zero(t, rep.Fields)
	assert.Equal(t, 12, rep.Skipped)
}

func TestApplyForwardAndSelfReferences(t *testing.T) {
	ctx := context.Background()
	a, objects, fields := newApplier(t)
	src := `
object Employee:
  code: identity prefix=EMP
  name: text
  manager: ref[Employee]
  dept: ref[Department]
  dept_name: ref[Department.title]

object Department:
  title: text
  head_name: ref[Employee.name]
`
	objs, err := Parse(strings.NewReader(src), "org.dsl")
	require.NoError(t, err)

	rep, err := a.Apply(ctx, objs, "admin")
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Fields)

	emp, err := objects.FindObjectByName(ctx, "Employee")
	require.NoError(t, err)
	list, err := fields.ListFields(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, "fd_code", list[0].Token)
	assert.Equal(t, schema.ReferenceObject{TargetObject: emp.ID}, list[2].Kind)
}

// взаимные ссылки поле-на-поле не могут быть созданы: первой определяемой ссылке не на что указывать
func TestApplyMutualFieldReferences(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newApplier(t)
	src := `
object A:
  f: ref[B.g]

object B:
  g: ref[A.f]
`
	objs, err := Parse(strings.NewReader(src), "loop.dsl")
	require.NoError(t, err)

	_, err = a.Apply(ctx, objs, "admin")
	require.ErrorIs(t, err, schema.ErrReferenceFieldNotFound)
}

// a.x ждёт b.y, который сам отложен до создания C
func TestApplyChainedDeferredFields(t *testing.T) {
	ctx := context.Background()
	a, objects, fields := newApplier(t)
	src := `
object A:
  x: ref[B.y]

object B:
  y: ref[C.z]

object C:
  z: text
`
	objs, err := Parse(strings.NewReader(src), "chain.dsl")
	require.NoError(t, err)

	rep, err := a.Apply(ctx, objs, "admin")
	require.NoError(t, err)
	assert.Len(t, rep.Created, 3)
	assert.Equal(t, 3, rep.Fields)

	objA, err := objects.FindObjectByName(ctx, "A")
	require.NoError(t, err)
	objB, err := objects.FindObjectByName(ctx, "B")
	require.NoError(t, err)
	x, err := fields.GetField(ctx, objA.ID, "fd_x")
	require.NoError(t, err)
	assert.Equal(t, schema.ReferenceField{TargetObject: objB.ID, TargetField: "fd_y"}, x.Kind)

	rep, err = a.Apply(ctx, objs, "admin")
	require.NoError(t, err)
	assert.Zero(t, rep.Fields)
	assert.Equal(t, 3, rep.Skipped)
}

func TestApplyUnknownTarget(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newApplier(t)
	objs, err := Parse(strings.NewReader("object A:\n  f: ref[Nope]\n"), "x.dsl")
	require.NoError(t, err)

	_, err = a.Apply(ctx, objs, "admin")
	require.ErrorIs(t, err, schema.ErrObjectNotFound)
}
