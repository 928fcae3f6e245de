package assettree

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store/memory"
)

type fixture struct {
	store     *memory.MemoryStore
	conn      backend.Connection
	mut       *Mutator
	projectID models.ProjectID
	branchID  models.BranchID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewMemoryStore()
	b := backend.NewMemoryBackend()
	conn := b.Connect()
	return &fixture{
		store:     st,
		conn:      conn,
		mut:       NewMutator(st, conn, zerolog.Nop()),
		projectID: models.NewProjectID(),
		branchID:  models.NewBranchID(),
	}
}

func (f *fixture) add(t *testing.T, name, assetType string, path models.IDList) *models.Asset {
	t.Helper()
	a := &models.Asset{
		ProjectID: f.projectID,
		BranchID:  f.branchID,
		Name:      name,
		Type:      assetType,
	}
	a.SetPath(path)
	require.NoError(t, f.store.CreateAsset(context.Background(), a))
	return a
}

func (f *fixture) path(t *testing.T, id int64) models.IDList {
	t.Helper()
	row, err := f.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row.Path()
}

func TestMoveIntoFolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Props", "folder", nil)
	box := f.add(t, "Box", "model", nil)

	patches, err := f.mut.Move(ctx, []int64{box.ID}, &folder.ID)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, box.ID, patches[0].UniqueID)
	assert.Equal(t, models.IDList{folder.ID}, patches[0].Path)
	assert.Equal(t, models.IDList{folder.ID}, f.path(t, box.ID))

	row, err := f.store.GetAsset(ctx, box.ID)
	require.NoError(t, err)
	parent, ok := models.ToInt64(row.Data["parentId"])
	require.True(t, ok)
	assert.Equal(t, folder.ID, parent)
}

func TestMoveToRoot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Props", "folder", nil)
	box := f.add(t, "Box", "model", models.IDList{folder.ID})

	patches, err := f.mut.Move(ctx, []int64{box.ID}, nil)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Empty(t, f.path(t, box.ID))

	row, err := f.store.GetAsset(ctx, box.ID)
	require.NoError(t, err)
	assert.Nil(t, row.Data["parentId"])
}

func TestMoveFolderCarriesDescendants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	outer := f.add(t, "Outer", "folder", nil)
	inner := f.add(t, "Inner", "folder", models.IDList{outer.ID})
	leaf := f.add(t, "Leaf", "model", models.IDList{outer.ID, inner.ID})
	dest := f.add(t, "Dest", "folder", nil)

	patches, err := f.mut.Move(ctx, []int64{outer.ID}, &dest.ID)
	require.NoError(t, err)
	assert.Len(t, patches, 3)

	assert.Equal(t, models.IDList{dest.ID}, f.path(t, outer.ID))
	assert.Equal(t, models.IDList{dest.ID, outer.ID}, f.path(t, inner.ID))
	assert.Equal(t, models.IDList{dest.ID, outer.ID, inner.ID}, f.path(t, leaf.ID))
}

func TestMoveIgnoresOtherBranches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Folder", "folder", nil)
	child := f.add(t, "Child", "model", models.IDList{folder.ID})
	dest := f.add(t, "Dest", "folder", nil)

	// a row in another branch that happens to share the folder id in its
	// path must not be rewritten by the scoped descendant scan
	stranger := &models.Asset{
		ProjectID: f.projectID,
		BranchID:  models.NewBranchID(),
		Name:      "Stranger",
		Type:      "model",
	}
	stranger.SetPath(models.IDList{folder.ID})
	require.NoError(t, f.store.CreateAsset(ctx, stranger))

	patches, err := f.mut.Move(ctx, []int64{folder.ID}, &dest.ID)
	require.NoError(t, err)
	assert.Len(t, patches, 2)
	assert.Equal(t, models.IDList{dest.ID, folder.ID}, f.path(t, child.ID))
	assert.Equal(t, models.IDList{folder.ID}, f.path(t, stranger.ID))
}

func TestMoveSelectionInsideSelectionMovesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Folder", "folder", nil)
	child := f.add(t, "Child", "model", models.IDList{folder.ID})
	dest := f.add(t, "Dest", "folder", nil)

	// selecting both the folder and its child must not re-root the child
	patches, err := f.mut.Move(ctx, []int64{folder.ID, child.ID}, &dest.ID)
	require.NoError(t, err)
	assert.Len(t, patches, 2)
	assert.Equal(t, models.IDList{dest.ID, folder.ID}, f.path(t, child.ID))
}

func TestMoveIntoOwnSubtreeIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Folder", "folder", nil)
	inner := f.add(t, "Inner", "folder", models.IDList{folder.ID})

	patches, err := f.mut.Move(ctx, []int64{folder.ID}, &inner.ID)
	require.NoError(t, err)
	assert.Empty(t, patches)
	assert.Empty(t, f.path(t, folder.ID))
}

func TestMovePatchesLiveDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Props", "folder", nil)
	box := f.add(t, "Box", "model", nil)

	doc := f.conn.Get("assets", "2")
	require.Equal(t, int64(2), box.ID)
	require.NoError(t, doc.Create(ctx, map[string]any{
		"path": []any{},
		"data": map[string]any{"path": []any{}},
	}))

	_, err := f.mut.Move(ctx, []int64{box.ID}, &folder.ID)
	require.NoError(t, err)

	require.NoError(t, doc.Fetch(ctx))
	data := doc.Data().(map[string]any)
	assert.Equal(t, []any{float64(folder.ID)}, data["path"])
	assert.Equal(t, []any{float64(folder.ID)}, data["data"].(map[string]any)["path"])
}

func TestDeleteExpandsFolders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	folder := f.add(t, "Folder", "folder", nil)
	inner := f.add(t, "Inner", "folder", models.IDList{folder.ID})
	leaf := f.add(t, "Leaf", "model", models.IDList{folder.ID, inner.ID})
	keep := f.add(t, "Keep", "model", nil)

	deleted, err := f.mut.Delete(ctx, []int64{folder.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{folder.ID, inner.ID, leaf.ID}, deleted)

	row, err := f.store.GetAsset(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, row)
	row, err = f.store.GetAsset(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDeletePlainAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.add(t, "Box", "model", nil)

	deleted, err := f.mut.Delete(ctx, []int64{box.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{box.ID}, deleted)
}

func TestDuplicateClonesSubtree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parent := f.add(t, "Parent", "folder", nil)
	folder := f.add(t, "Folder", "folder", models.IDList{parent.ID})
	leaf := f.add(t, "Leaf", "model", models.IDList{parent.ID, folder.ID})

	created, err := f.mut.Duplicate(ctx, []int64{folder.ID})
	require.NoError(t, err)
	require.Len(t, created, 2)

	cloneFolder := created[0]
	cloneLeaf := created[1]
	assert.Equal(t, "Folder Copy", cloneFolder.Name)
	assert.Equal(t, "Leaf", cloneLeaf.Name)
	// the clone keeps the original parent but owns its subtree
	assert.Equal(t, models.IDList{parent.ID}, cloneFolder.Path())
	assert.Equal(t, models.IDList{parent.ID, cloneFolder.ID}, cloneLeaf.Path())
	require.NotNil(t, cloneFolder.SourceAssetID)
	assert.Equal(t, folder.ID, *cloneFolder.SourceAssetID)

	// originals untouched
	assert.Equal(t, models.IDList{parent.ID, folder.ID}, f.path(t, leaf.ID))
}

func TestDuplicateRewritesFileURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.add(t, "Box", "model", nil)
	require.NoError(t, f.store.UpdateAssetFile(ctx, box.ID, &models.FileInfo{
		Filename:    "box.glb",
		Size:        10,
		Mime:        "model/gltf-binary",
		URL:         "/api/assets/1/file/box.glb",
		StoragePath: "p/b/1/box.glb",
	}))

	created, err := f.mut.Duplicate(ctx, []int64{box.ID})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].File)
	assert.NotEqual(t, "/api/assets/1/file/box.glb", created[0].File.URL)
	assert.Contains(t, created[0].File.URL, "box.glb")
}

func TestDuplicateNamingChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.add(t, "Box", "model", nil)

	first, err := f.mut.Duplicate(ctx, []int64{box.ID})
	require.NoError(t, err)
	assert.Equal(t, "Box Copy", first[0].Name)

	second, err := f.mut.Duplicate(ctx, []int64{first[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "Box Copy 2", second[0].Name)

	third, err := f.mut.Duplicate(ctx, []int64{second[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "Box Copy 3", third[0].Name)
}

func TestPasteRetargetsAndCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.add(t, "Box", "model", nil)
	dest := f.add(t, "Dest", "folder", nil)

	created, err := f.mut.Paste(ctx, []int64{box.ID}, models.BranchID{}, &dest.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Box Copy", created[0].Name)
	assert.Equal(t, models.IDList{dest.ID}, created[0].Path())

	// pasting the copy advances the counter instead of stacking suffixes
	second, err := f.mut.Paste(ctx, []int64{created[0].ID}, models.BranchID{}, &dest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Box Copy 2", second[0].Name)

	third, err := f.mut.Paste(ctx, []int64{second[0].ID}, models.BranchID{}, &dest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Box Copy 3", third[0].Name)
}

func TestPasteIntoBranch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.add(t, "Box", "model", nil)
	branch := models.NewBranchID()

	created, err := f.mut.Paste(ctx, []int64{box.ID}, branch, nil)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, branch, created[0].BranchID)
	assert.Empty(t, created[0].Path())
}

func TestNextCopyName(t *testing.T) {
	assert.Equal(t, "Box Copy", nextCopyName("Box"))
	assert.Equal(t, "Box Copy 2", nextCopyName("Box Copy"))
	assert.Equal(t, "Box Copy 3", nextCopyName("Box Copy 2"))
	assert.Equal(t, "Box Copy 10", nextCopyName("Box Copy 9"))
}
