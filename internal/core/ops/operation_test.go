package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/playsync/internal/core/document"
)

func offset(n uint32) Translator {
	return func(id document.ObjectID) (document.ObjectID, bool) {
		return document.ObjectID{Index: id.Index + n, Generation: id.Generation}, true
	}
}

func TestRecorderDrainKeepsOrder(t *testing.T) {
	r := NewRecorder()
	r.OnOperation(SetMode{Mode: document.ModePlay})
	r.OnOperation(SetLabel{Label: "a"})
	assert.Equal(t, 2, r.Len())

	batch := r.Drain()
	require.Len(t, batch, 2)
	assert.Equal(t, KindSetMode, batch[0].Kind())
	assert.Equal(t, KindSetLabel, batch[1].Kind())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Drain())
}

func TestEditorEmitsOnlySuccessfulEdits(t *testing.T) {
	doc := document.New()
	rec := NewRecorder()
	ed := NewEditor(doc, rec)

	root, err := ed.AddEntity(document.ObjectID{}, "root")
	require.NoError(t, err)
	child, err := ed.AddEntity(root, "child")
	require.NoError(t, err)
	mat, err := ed.AddComponent(child, document.ComponentMaterial)
	require.NoError(t, err)
	require.NoError(t, ed.SetProperty(mat, "visible", document.BoolValue(false)))

	assert.Error(t, ed.SetProperty(mat, "visible", document.IntValue(1)))
	_, err = ed.AddEntity(document.ObjectID{}, "again")
	assert.Error(t, err)

	batch := rec.Drain()
	require.Len(t, batch, 4)
	assert.Equal(t, AddEntity{Parent: root, Entity: child, Label: "child"}, batch[1])
	assert.Equal(t, AddComponent{Entity: child, Component: mat, ComponentKind: document.ComponentMaterial}, batch[2])
	assert.Equal(t, child, Origin(batch[1]))
	assert.Equal(t, mat, Origin(batch[2]))
	assert.True(t, Origin(batch[3]).IsZero())
}

func TestEditorCopiesScale(t *testing.T) {
	doc := document.New()
	rec := NewRecorder()
	ed := NewEditor(doc, rec)
	root, _ := ed.AddEntity(document.ObjectID{}, "root")

	scale := document.Vec3{X: 2, Y: 2, Z: 2}
	require.NoError(t, ed.SetTransform(root, document.Vec3{}, document.IdentityQuat, &scale))
	scale.X = 100

	batch := rec.Drain()
	op := batch[len(batch)-1].(SetTransform)
	assert.Equal(t, 2.0, op.Scale.X)
}

func TestRewriteTranslatesEveryTarget(t *testing.T) {
	comp := document.ObjectID{Index: 1, Generation: 1}
	ref := document.ObjectID{Index: 2, Generation: 1}
	asset := document.ObjectID{Index: 3, Generation: 1}

	op, err := SetProperty{Component: comp, Name: "target", Value: document.ObjectRefValue(ref)}.Rewrite(offset(10))
	require.NoError(t, err)
	sp := op.(SetProperty)
	assert.Equal(t, uint32(11), sp.Component.Index)
	assert.Equal(t, uint32(12), sp.Value.Ref.Index)

	op, err = SetProperty{Component: comp, Name: "texture", Value: document.AssetRefValue(asset)}.Rewrite(offset(10))
	require.NoError(t, err)
	assert.Equal(t, asset, op.(SetProperty).Value.Ref, "asset references are shared and not translated")

	op, err = Reparent{Entity: comp, Parent: ref}.Rewrite(offset(5))
	require.NoError(t, err)
	assert.Equal(t, Reparent{
		Entity: document.ObjectID{Index: 6, Generation: 1},
		Parent: document.ObjectID{Index: 7, Generation: 1},
	}, op)
}

func TestRewriteFailure(t *testing.T) {
	known := document.ObjectID{Index: 1, Generation: 1}
	missing := document.ObjectID{Index: 9, Generation: 1}
	tr := func(id document.ObjectID) (document.ObjectID, bool) {
		return id, id == known
	}

	_, err := Reparent{Entity: known, Parent: missing}.Rewrite(tr)
	require.ErrorIs(t, err, ErrUntranslatable)
	var terr *TranslationError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, missing, terr.ID)
	assert.Equal(t, KindReparent, terr.Op)

	_, err = SetMode{Mode: document.ModePlay}.Rewrite(tr)
	assert.NoError(t, err)
}

func TestTargets(t *testing.T) {
	c := document.ObjectID{Index: 1, Generation: 1}
	r := document.ObjectID{Index: 2, Generation: 1}
	assert.Equal(t, []document.ObjectID{c, r}, SetProperty{Component: c, Value: document.ObjectRefValue(r)}.Targets())
	assert.Equal(t, []document.ObjectID{c}, SetProperty{Component: c, Value: document.AssetRefValue(r)}.Targets())
	assert.Nil(t, SetMode{}.Targets())
}

func TestApplyWithPlacement(t *testing.T) {
	master := document.New()
	rec := NewRecorder()
	ed := NewEditor(master, rec)
	root, _ := ed.AddEntity(document.ObjectID{}, "root")
	child, _ := ed.AddEntity(root, "child")
	cam, _ := ed.AddComponent(child, document.ComponentCamera)
	require.NoError(t, ed.SetProperty(cam, "fov", document.FloatValue(90)))
	ed.SetMode(document.ModePlay)

	mirror := document.New()
	for _, op := range rec.Drain() {
		res, err := op.Apply(mirror, ApplyOptions{Place: true})
		require.NoError(t, err, op.Kind().String())
		if origin := Origin(op); !origin.IsZero() {
			assert.Equal(t, origin, res.Created)
		}
	}

	v, err := mirror.Property(cam, "fov")
	require.NoError(t, err)
	assert.Equal(t, 90.0, v.Float)
	assert.Equal(t, document.ModePlay, mirror.Mode())
	assert.Equal(t, master.Fingerprint(), mirror.Fingerprint())
}
