package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDListHasPrefix(t *testing.T) {
	path := IDList{1, 2, 3}
	assert.True(t, path.HasPrefix(IDList{}))
	assert.True(t, path.HasPrefix(IDList{1}))
	assert.True(t, path.HasPrefix(IDList{1, 2, 3}))
	assert.False(t, path.HasPrefix(IDList{2}))
	assert.False(t, path.HasPrefix(IDList{1, 3}))
	assert.False(t, path.HasPrefix(IDList{1, 2, 3, 4}))
}

func TestIDListFromAny(t *testing.T) {
	// JSON decoding produces float64 elements
	assert.Equal(t, IDList{5, 9}, IDListFromAny([]any{5.0, 9.0}))
	assert.Equal(t, IDList{7}, IDListFromAny([]any{int64(7)}))
	assert.Empty(t, IDListFromAny("not a list"))
	assert.Empty(t, IDListFromAny(nil))
}

func TestAssetSetPath(t *testing.T) {
	a := &Asset{}
	a.SetPath(IDList{4, 9})
	require.NotNil(t, a.Data)
	assert.Equal(t, []any{int64(4), int64(9)}, a.Data["path"])
	assert.Equal(t, int64(9), a.Data["parentId"])
	require.NotNil(t, a.ParentID())
	assert.Equal(t, int64(9), *a.ParentID())

	a.SetPath(IDList{})
	assert.Nil(t, a.Data["parentId"])
	assert.Nil(t, a.ParentID())
}

func TestAssetPathLenientRead(t *testing.T) {
	a := &Asset{Data: JSONMap{"path": "garbage"}}
	assert.Empty(t, a.Path())
	a = &Asset{}
	assert.Empty(t, a.Path())
}

func TestJSONMapClone(t *testing.T) {
	m := JSONMap{"nested": map[string]any{"k": int64(1)}}
	c := m.Clone()
	c["nested"].(map[string]any)["k"] = 2.0
	assert.Equal(t, int64(1), m["nested"].(map[string]any)["k"])
}

func TestTypedIDRoundTrip(t *testing.T) {
	id := NewProjectID()
	parsed, err := ParseProjectID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseProjectID("not-a-uuid")
	assert.Error(t, err)

	var scanned BranchID
	src := NewBranchID()
	require.NoError(t, scanned.Scan(src.String()))
	assert.Equal(t, src, scanned)
}
