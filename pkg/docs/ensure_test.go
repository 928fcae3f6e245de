package docs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/blob"
	"github.com/pixlland/workspace-sync/pkg/defaults"
	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store/memory"
)

func testManager(t *testing.T, st *memory.MemoryStore, opts Options) (*Manager, backend.Connection) {
	t.Helper()
	b := backend.NewMemoryBackend()
	conn := b.Connect()
	var mgr *Manager
	if st == nil {
		mgr = NewManager(nil, nil, conn, zerolog.Nop(), opts)
	} else {
		mgr = NewManager(st, blob.NewMemBucket(), conn, zerolog.Nop(), opts)
	}
	return mgr, conn
}

func fetchData(t *testing.T, conn backend.Connection, collection, id string) map[string]any {
	t.Helper()
	doc := conn.Get(collection, id)
	require.NoError(t, doc.Fetch(context.Background()))
	require.True(t, doc.Exists(), "document %s/%s missing", collection, id)
	data, ok := doc.Data().(map[string]any)
	require.True(t, ok)
	return data
}

func TestEnsureSettingsCreatesScopedDefaults(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	mgr.EnsureSettings(ctx, "project_settings_abc")
	data := fetchData(t, conn, "settings", "project_settings_abc")
	assert.Equal(t, true, data["engineV2"])
	assert.NotContains(t, data, "editor")

	mgr.EnsureSettings(ctx, "project_abc_user_1")
	data = fetchData(t, conn, "settings", "project_abc_user_1")
	assert.Contains(t, data, "editor")
	assert.Contains(t, data, "favoriteBranches")

	mgr.EnsureSettings(ctx, "project-private_abc")
	data = fetchData(t, conn, "settings", "project-private_abc")
	assert.Empty(t, data)
}

func TestEnsureSettingsMergesMissingKeys(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	// an older document missing newer default keys, with a user override
	doc := conn.Get("settings", "user_9")
	require.NoError(t, doc.Create(ctx, map[string]any{
		"editor": map[string]any{"gridDivisions": 64.0},
	}))

	mgr.EnsureSettings(ctx, "user_9")

	data := fetchData(t, conn, "settings", "user_9")
	editor := data["editor"].(map[string]any)
	assert.Equal(t, 64.0, editor["gridDivisions"])
	assert.Contains(t, editor, "snapIncrement")
}

func TestEnsureSettingsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	mgr.EnsureSettings(ctx, "user_2")
	first := fetchData(t, conn, "settings", "user_2")
	mgr.EnsureSettings(ctx, "user_2")
	second := fetchData(t, conn, "settings", "user_2")
	assert.Equal(t, first, second)
}

func TestEnsureAssetFromRow(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	mgr, conn := testManager(t, st, Options{})

	asset := &models.Asset{
		ProjectID: models.NewProjectID(),
		BranchID:  models.NewBranchID(),
		Name:      "Rock",
		Type:      "model",
		Data:      models.JSONMap{"path": []any{int64(3)}, "parentId": int64(3)},
	}
	require.NoError(t, st.CreateAsset(ctx, asset))

	mgr.EnsureAsset(ctx, formatAssetID(asset.ID))

	data := fetchData(t, conn, "assets", formatAssetID(asset.ID))
	assert.Equal(t, "Rock", data["name"])
	assert.Equal(t, "model", data["type"])
	assert.Equal(t, []any{3.0}, data["path"])
}

func TestEnsureAssetPlaceholder(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	mgr.EnsureAsset(ctx, "42")

	data := fetchData(t, conn, "assets", "42")
	assert.Equal(t, "Asset 42", data["name"])
	assert.Equal(t, "unknown", data["type"])
	assert.Equal(t, "local", data["branch_id"])
}

func TestEnsureAssetDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	doc := conn.Get("assets", "7")
	require.NoError(t, doc.Create(ctx, map[string]any{"name": "Kept"}))

	mgr.EnsureAsset(ctx, "7")
	data := fetchData(t, conn, "assets", "7")
	assert.Equal(t, "Kept", data["name"])
}

func TestEnsureUserData(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	mgr.EnsureUserData(ctx, "user_5")
	data := fetchData(t, conn, "user_data", "user_5")
	assert.Empty(t, data)
}

func TestEnsureSceneCreatesDefaults(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	mgr.EnsureScene(ctx, RefForSceneID("11"))

	data := fetchData(t, conn, "scenes", "11")
	assert.Equal(t, "Scene 11", data["name"])
	assert.Equal(t, 11.0, data["item_id"])

	settings := data["settings"].(map[string]any)
	render := settings["render"].(map[string]any)
	assert.Equal(t, "none", render["fog"])
	assert.NotContains(t, render, "skybox")

	entities := data["entities"].(map[string]any)
	assert.Contains(t, entities, "root")
	assert.Contains(t, entities, "camera")
	assert.Contains(t, entities, "light")
}

func TestRefForSceneNameFallback(t *testing.T) {
	named := RefForScene(&models.Scene{ID: 4, UniqueID: "4", Name: "Lobby"})
	assert.Equal(t, "Lobby", named.Name)

	unnamed := RefForScene(&models.Scene{ID: 5, UniqueID: "5"})
	assert.Equal(t, "Main Scene", unnamed.Name)
}

func TestEnsureSceneMigratesSettingsAndEntities(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	doc := conn.Get("scenes", "12")
	require.NoError(t, doc.Create(ctx, map[string]any{
		"name": "Old",
		"settings": map[string]any{
			"render": map[string]any{"fog": "linear"},
		},
		"entities": map[string]any{},
	}))

	mgr.EnsureScene(ctx, RefForSceneID("12"))

	data := fetchData(t, conn, "scenes", "12")
	render := data["settings"].(map[string]any)["render"].(map[string]any)
	assert.Equal(t, "linear", render["fog"])
	assert.Contains(t, render, "fog_end")
	assert.Contains(t, data["settings"].(map[string]any), "physics")
	assert.Contains(t, data["entities"].(map[string]any), "root")
}

func TestEnsureSceneKeepsPopulatedEntities(t *testing.T) {
	ctx := context.Background()
	mgr, conn := testManager(t, nil, Options{})

	doc := conn.Get("scenes", "13")
	require.NoError(t, doc.Create(ctx, map[string]any{
		"settings": map[string]any{},
		"entities": map[string]any{"custom": map[string]any{"name": "Custom"}},
	}))

	mgr.EnsureScene(ctx, RefForSceneID("13"))

	entities := fetchData(t, conn, "scenes", "13")["entities"].(map[string]any)
	assert.Contains(t, entities, "custom")
	assert.NotContains(t, entities, "root")
}

func seedScope(t *testing.T, st *memory.MemoryStore) (models.ProjectID, models.BranchID, models.UserID) {
	t.Helper()
	owner := models.NewUserID()
	project := models.Project{ID: models.NewProjectID(), Name: "Demo", OwnerID: owner}
	branch := models.Branch{ID: models.NewBranchID(), ProjectID: project.ID, Name: "main"}
	st.PutProject(project)
	st.PutBranch(branch)
	return project.ID, branch.ID, owner
}

func skyboxSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlas.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func TestEnsureDefaultSkyboxInsertsOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, owner := seedScope(t, st)
	mgr, _ := testManager(t, st, Options{SkyboxEnabled: true, SkyboxSource: skyboxSource(t)})

	first := mgr.EnsureDefaultSkybox(ctx, projectID, branchID, owner)
	require.NotZero(t, first)
	second := mgr.EnsureDefaultSkybox(ctx, projectID, branchID, owner)
	assert.Equal(t, first, second)

	row, err := st.GetAsset(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, defaults.SkyboxAssetName, row.Name)
	assert.Equal(t, defaults.SkyboxAssetType, row.Type)
	require.NotNil(t, row.File)
	assert.Equal(t, defaults.SkyboxFilename, row.File.Filename)
	assert.Contains(t, row.File.URL, "/api/assets/")
}

func TestEnsureDefaultSkyboxOwnerFallback(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, _ := seedScope(t, st)
	mgr, _ := testManager(t, st, Options{SkyboxEnabled: true, SkyboxSource: skyboxSource(t)})

	id := mgr.EnsureDefaultSkybox(ctx, projectID, branchID, models.UserID{})
	require.NotZero(t, id)

	row, err := st.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.False(t, row.OwnerID.IsZero())
}

func TestEnsureDefaultSkyboxMissingSourceSkips(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, owner := seedScope(t, st)
	mgr, _ := testManager(t, st, Options{SkyboxEnabled: true, SkyboxSource: "/nonexistent/atlas.png"})

	assert.Zero(t, mgr.EnsureDefaultSkybox(ctx, projectID, branchID, owner))
}

func TestEnsureDefaultSkyboxRepairsDriftedData(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, owner := seedScope(t, st)
	mgr, _ := testManager(t, st, Options{SkyboxEnabled: true, SkyboxSource: skyboxSource(t)})

	drifted := &models.Asset{
		ProjectID: projectID,
		BranchID:  branchID,
		OwnerID:   owner,
		Name:      defaults.SkyboxAssetName,
		Type:      defaults.SkyboxAssetType,
		Data:      models.JSONMap{"type": "rgba", "keep": "me"},
	}
	require.NoError(t, st.CreateAsset(ctx, drifted))

	id := mgr.EnsureDefaultSkybox(ctx, projectID, branchID, owner)
	assert.Equal(t, drifted.ID, id)

	row, err := st.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rgbp", row.Data["type"])
	assert.Equal(t, "me", row.Data["keep"])
	assert.Contains(t, row.Data, "textures")
}

func TestEnsureSceneInjectsSkybox(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, owner := seedScope(t, st)
	mgr, conn := testManager(t, st, Options{SkyboxEnabled: true, SkyboxSource: skyboxSource(t)})

	scene := &models.Scene{ProjectID: projectID, BranchID: branchID, OwnerID: owner, Name: "Main"}
	require.NoError(t, st.CreateScene(ctx, scene))

	mgr.EnsureScene(ctx, RefForScene(scene))

	data := fetchData(t, conn, "scenes", scene.UniqueID)
	render := data["settings"].(map[string]any)["render"].(map[string]any)
	skybox, ok := models.ToInt64(render["skybox"])
	require.True(t, ok)
	assert.NotZero(t, skybox)
}

func TestSeedAllCreatesDocuments(t *testing.T) {
	ctx := context.Background()
	st := memory.NewMemoryStore()
	projectID, branchID, owner := seedScope(t, st)
	mgr, conn := testManager(t, st, Options{})

	scene := &models.Scene{ProjectID: projectID, BranchID: branchID, OwnerID: owner, Name: "Main"}
	require.NoError(t, st.CreateScene(ctx, scene))
	asset := &models.Asset{ProjectID: projectID, BranchID: branchID, OwnerID: owner, Name: "Box", Type: "model"}
	require.NoError(t, st.CreateAsset(ctx, asset))

	mgr.SeedAll(ctx, 200, 500)

	fetchData(t, conn, "scenes", scene.UniqueID)
	data := fetchData(t, conn, "assets", formatAssetID(asset.ID))
	assert.Equal(t, "Box", data["name"])
}

func formatAssetID(id int64) string {
	return strconv.FormatInt(id, 10)
}
