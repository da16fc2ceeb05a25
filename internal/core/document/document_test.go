package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScene(t *testing.T) (*Document, ObjectID, ObjectID, ObjectID) {
	t.Helper()
	d := New()
	root, err := d.AddEntity(ObjectID{}, "E1")
	require.NoError(t, err)
	child, err := d.AddEntity(root, "E2")
	require.NoError(t, err)
	mat, err := d.AddComponent(child, ComponentMaterial)
	require.NoError(t, err)
	return d, root, child, mat
}

func TestArenaGenerations(t *testing.T) {
	a := newArena[string]()
	first := a.alloc("a")
	assert.Equal(t, uint32(1), first.Index)
	assert.Equal(t, uint32(1), first.Generation)

	require.True(t, a.release(first))
	_, ok := a.get(first)
	assert.False(t, ok)

	second := a.alloc("b")
	assert.Equal(t, first.Index, second.Index)
	assert.Equal(t, uint32(2), second.Generation)

	_, ok = a.get(first)
	assert.False(t, ok, "stale id must not resolve to the reused slot")
	v, ok := a.get(second)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestArenaPlace(t *testing.T) {
	a := newArena[string]()
	id := ObjectID{Index: 5, Generation: 3}
	require.NoError(t, a.place(id, "x"))

	v, ok := a.get(id)
	require.True(t, ok)
	assert.Equal(t, "x", v)
	assert.ErrorIs(t, a.place(id, "y"), ErrSlotOccupied)

	next := a.alloc("z")
	assert.NotEqual(t, id.Index, next.Index)
	assert.ErrorIs(t, a.place(ObjectID{}, "w"), ErrInvalidID)
}

func TestObjectIDPacking(t *testing.T) {
	id := ObjectID{Index: 42, Generation: 7}
	assert.Equal(t, id, Unpack(id.Pack()))
	assert.True(t, ObjectID{}.IsZero())
	assert.Equal(t, "42@7", id.String())
}

func TestSingleRoot(t *testing.T) {
	d, root, _, _ := newScene(t)
	assert.Equal(t, root, d.Root())

	_, err := d.AddEntity(ObjectID{}, "second root")
	assert.ErrorIs(t, err, ErrRootExists)
	assert.ErrorIs(t, d.RemoveEntity(root), ErrRootRemoval)
	assert.ErrorIs(t, d.Reparent(root, root), ErrRootMove)
}

func TestAddEntityUnknownParent(t *testing.T) {
	d := New()
	_, err := d.AddEntity(ObjectID{Index: 9, Generation: 1}, "orphan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReparent(t *testing.T) {
	d, root, child, _ := newScene(t)
	grandchild, err := d.AddEntity(child, "E3")
	require.NoError(t, err)

	assert.ErrorIs(t, d.Reparent(child, grandchild), ErrCycle)
	require.NoError(t, d.Reparent(grandchild, root))

	r, _ := d.Entity(root)
	c, _ := d.Entity(child)
	g, _ := d.Entity(grandchild)
	assert.Equal(t, []ObjectID{child, grandchild}, r.Children())
	assert.Empty(t, c.Children())
	assert.Equal(t, root, g.Parent())
}

func TestComponentPerKind(t *testing.T) {
	d, _, child, mat := newScene(t)

	_, err := d.AddComponent(child, ComponentMaterial)
	assert.ErrorIs(t, err, ErrComponentExists)
	_, err = d.AddComponent(child, ComponentKind(200))
	assert.ErrorIs(t, err, ErrInvalidComponent)

	cam, err := d.AddComponent(child, ComponentCamera)
	require.NoError(t, err)

	e, _ := d.Entity(child)
	assert.Equal(t, []ObjectID{cam, mat}, e.Components())

	require.NoError(t, d.RemoveComponent(mat))
	_, ok := e.Component(ComponentMaterial)
	assert.False(t, ok)
	_, err = d.AddComponent(child, ComponentMaterial)
	assert.NoError(t, err)
}

func TestPropertyAccess(t *testing.T) {
	d, _, _, mat := newScene(t)

	v, err := d.Property(mat, "visible")
	require.NoError(t, err)
	assert.True(t, v.Bool)

	require.NoError(t, d.SetProperty(mat, "visible", BoolValue(false)))
	v, err = d.Property(mat, "visible")
	require.NoError(t, err)
	assert.False(t, v.Bool)

	err = d.SetProperty(mat, "visible", FloatValue(1))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	var perr *PropertyError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ValueBool, perr.Want)
	assert.Equal(t, ValueFloat, perr.Got)

	_, err = d.Property(mat, "glossiness")
	assert.ErrorIs(t, err, ErrUnknownProperty)
	assert.ErrorIs(t, d.SetProperty(mat, "glossiness", FloatValue(1)), ErrUnknownProperty)
	assert.ErrorIs(t, d.SetProperty(ObjectID{Index: 99, Generation: 1}, "visible", BoolValue(true)), ErrNotFound)
}

func TestRemoveEntityReclaimsSubtree(t *testing.T) {
	d, root, child, mat := newScene(t)
	grandchild, err := d.AddEntity(child, "E3")
	require.NoError(t, err)

	var reclaimed []ObjectID
	d.OnReclaim(func(o Object) { reclaimed = append(reclaimed, o.ID()) })

	require.NoError(t, d.RemoveEntity(child))
	assert.Equal(t, []ObjectID{grandchild, mat, child}, reclaimed)
	assert.Equal(t, 1, d.Len())

	r, _ := d.Entity(root)
	assert.Empty(t, r.Children())
	_, ok := d.Component(mat)
	assert.False(t, ok)
}

func TestRemoveEntityDropsItsControllers(t *testing.T) {
	d, root, child, _ := newScene(t)
	grandchild, err := d.AddEntity(child, "E3")
	require.NoError(t, err)
	spin, err := d.AddController("spin", grandchild, ComponentMaterial, "opacity", nil)
	require.NoError(t, err)
	fade, err := d.AddController("fade", root, ComponentMaterial, "opacity", nil)
	require.NoError(t, err)

	var reclaimed []ObjectID
	d.OnReclaim(func(o Object) { reclaimed = append(reclaimed, o.ID()) })

	require.NoError(t, d.RemoveEntity(child))
	assert.Contains(t, reclaimed, spin)
	assert.NotContains(t, reclaimed, fade)
	assert.Equal(t, []ObjectID{fade}, d.Controllers())
	_, ok := d.Controller(spin)
	assert.False(t, ok)
	assert.Equal(t, 2, d.Len())
}

func TestCollectKeepsRoot(t *testing.T) {
	d, root, _, _ := newScene(t)
	_, err := d.AddController("fade", root, ComponentMaterial, "opacity", nil)
	require.NoError(t, err)
	rootCam, err := d.AddComponent(root, ComponentCamera)
	require.NoError(t, err)

	seen := map[ObjectID]int{}
	d.OnReclaim(func(o Object) { seen[o.ID()]++ })

	n := d.Collect(true)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, root, d.Root())
	assert.Equal(t, 1, seen[rootCam])
	for id, count := range seen {
		assert.Equal(t, 1, count, "object %s reclaimed more than once", id)
	}
	assert.NotContains(t, seen, root)

	assert.Equal(t, 1, d.Collect(false))
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.Root().IsZero())
}

func TestControllerAnimate(t *testing.T) {
	d, _, child, mat := newScene(t)
	_, err := d.AddController("fade", child, ComponentMaterial, "opacity", []Keyframe{
		{Time: 0, Value: 1},
		{Time: 2, Value: 0},
	})
	require.NoError(t, err)

	require.NoError(t, d.Animate(0.5))
	v, err := d.Property(mat, "opacity")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, v.Float, 1e-9)

	require.NoError(t, d.Animate(10))
	v, _ = d.Property(mat, "opacity")
	assert.Equal(t, 0.0, v.Float)

	_, err = d.AddController("bad", ObjectID{Index: 77, Generation: 1}, ComponentMaterial, "opacity", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSharedLibrary(t *testing.T) {
	lib := NewLibrary()
	tex := lib.AddAsset("brick.png", "image/png", []byte{1, 2, 3})
	buf := lib.AddBuffer("mesh", []byte{4})

	a := New(WithLibrary(lib))
	b := New(WithLibrary(lib))
	assert.Same(t, a.Library(), b.Library())

	r, ok := b.Library().Resource(tex)
	require.True(t, ok)
	assert.Equal(t, KindAsset, r.ObjectKind())
	assert.Len(t, lib.Assets(), 1)
	assert.Len(t, lib.Buffers(), 1)
	assert.Equal(t, buf, lib.Buffers()[0].ID())

	_, err := lib.Place(tex, KindAsset, "dup", "", nil)
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestResourceRefs(t *testing.T) {
	d, _, child, mat := newScene(t)
	tex := d.Library().AddAsset("a.png", "image/png", []byte{1})
	d.Library().AddAsset("b.png", "image/png", []byte{2})
	mesh := d.Library().AddBuffer("mesh", []byte{3})
	assert.Empty(t, d.ResourceRefs())

	require.NoError(t, d.SetProperty(mat, "texture", AssetRefValue(tex)))
	box, err := d.AddComponent(child, ComponentBox)
	require.NoError(t, err)
	require.NoError(t, d.SetProperty(box, "mesh", AssetRefValue(mesh)))
	assert.ElementsMatch(t, []ObjectID{tex, mesh}, d.ResourceRefs())
}

func TestFingerprintIgnoresNumbering(t *testing.T) {
	build := func(d *Document) {
		root, _ := d.AddEntity(ObjectID{}, "root")
		a, _ := d.AddEntity(root, "a")
		b, _ := d.AddEntity(root, "b")
		in, _ := d.AddComponent(a, ComponentInput)
		_ = d.SetProperty(in, "target", ObjectRefValue(b))
		_ = d.SetTransform(b, Vec3{X: 1}, IdentityQuat, &Vec3{X: 2, Y: 2, Z: 2})
	}

	first := New()
	build(first)

	second := New()
	// burn a few slots so ids differ
	for i := 0; i < 3; i++ {
		second.objects.alloc(&Entity{})
	}
	build(second)

	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	_ = second.SetLabel(second.Root(), "renamed")
	assert.NotEqual(t, first.Fingerprint(), second.Fingerprint())
}
