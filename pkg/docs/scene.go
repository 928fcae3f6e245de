package docs

import (
	"context"
	"strconv"

	"github.com/pixlland/workspace-sync/pkg/defaults"
	"github.com/pixlland/workspace-sync/pkg/merge"
	"github.com/pixlland/workspace-sync/pkg/models"
)

// SceneRef names a scene document plus the seed metadata written into
// it on first creation.
type SceneRef struct {
	// DocID is the document id on the wire, a unique id or a numeric
	// row id rendered as a string.
	DocID string
	// ItemID is the item_id payload field, numeric where possible.
	ItemID any
	// BranchID scopes the scene, "local" when unknown.
	BranchID string
	// Name seeds the scene name.
	Name string
}

// RefForSceneID builds a ref for a bare wire id, the demand-create path
// where no row metadata is known yet.
func RefForSceneID(id string) SceneRef {
	return SceneRef{
		DocID:    id,
		ItemID:   itemID(id),
		BranchID: "local",
		Name:     "Scene " + id,
	}
}

// RefForScene builds a ref from a persisted row, the seed path.
func RefForScene(row *models.Scene) SceneRef {
	docID := row.UniqueID
	if docID == "" {
		docID = strconv.FormatInt(row.ID, 10)
	}
	branch := "local"
	if !row.BranchID.IsZero() {
		branch = row.BranchID.String()
	}
	name := row.Name
	if name == "" {
		name = "Main Scene"
	}
	return SceneRef{
		DocID:    docID,
		ItemID:   row.ID,
		BranchID: branch,
		Name:     name,
	}
}

// EnsureScene creates a scene document with the default entity tree and
// settings, or migrates an existing one: settings are merged toward the
// defaults, an empty entity tree is replaced with the default one, and
// the default skybox reference is kept in place. Each of the two fields
// is patched at most once, and only when its migrated value differs.
func (m *Manager) EnsureScene(ctx context.Context, ref SceneRef) {
	doc := m.conn.Get("scenes", ref.DocID)
	if err := doc.Fetch(ctx); err != nil {
		m.log.Error().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("fetch failed")
		return
	}

	if !doc.Exists() {
		settings := map[string]any(defaults.SceneSettings())
		if skyboxID := m.resolveSceneSkybox(ctx, ref); skyboxID != 0 {
			if render, ok := settings["render"].(map[string]any); ok {
				render["skybox"] = skyboxID
			}
		}
		payload := map[string]any{
			"item_id":   ref.ItemID,
			"branch_id": ref.BranchID,
			"name":      ref.Name,
			"settings":  settings,
			"entities":  map[string]any(defaults.SceneEntities()),
		}
		if err := doc.Create(ctx, payload); err != nil {
			m.log.Error().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("create failed")
		}
		return
	}

	data, _ := doc.Data().(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	currentSettings, _ := data["settings"].(map[string]any)
	if currentSettings == nil {
		currentSettings = map[string]any{}
	}
	nextSettings, _ := merge.Defaults(currentSettings, map[string]any(defaults.SceneSettings())).(map[string]any)
	if nextSettings == nil {
		nextSettings = map[string]any{}
	}
	if skyboxID := m.resolveSceneSkybox(ctx, ref); skyboxID != 0 {
		if render, ok := nextSettings["render"].(map[string]any); ok {
			if have, ok := models.ToInt64(render["skybox"]); !ok || have != skyboxID {
				render["skybox"] = skyboxID
			}
		}
	}
	if !merge.Equal(currentSettings, nextSettings) {
		if err := doc.SubmitReplace(ctx, []string{"settings"}, nextSettings); err != nil {
			m.log.Error().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("settings patch failed")
		}
	}

	currentEntities, _ := data["entities"].(map[string]any)
	if len(currentEntities) == 0 {
		next := map[string]any(defaults.SceneEntities())
		if err := doc.SubmitReplace(ctx, []string{"entities"}, next); err != nil {
			m.log.Error().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("entities patch failed")
		}
	}
}

// resolveSceneSkybox maps a scene ref to its project/branch scope and
// returns the id of the bootstrapped default skybox asset, or 0 when the
// enrichment is disabled or the scope cannot be resolved.
func (m *Manager) resolveSceneSkybox(ctx context.Context, ref SceneRef) int64 {
	if !m.opts.SkyboxEnabled || m.store == nil {
		return 0
	}

	row, err := m.store.GetSceneByUniqueID(ctx, ref.DocID)
	if err != nil {
		m.log.Warn().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("scene lookup failed")
		return 0
	}
	if row == nil {
		if numeric, perr := strconv.ParseInt(ref.DocID, 10, 64); perr == nil {
			row, err = m.store.GetScene(ctx, numeric)
			if err != nil {
				m.log.Warn().Err(err).Str("doc", "scenes:"+ref.DocID).Msg("scene lookup failed")
				return 0
			}
		}
	}
	if row == nil || row.ProjectID.IsZero() {
		return 0
	}

	branchID := row.BranchID
	if branchID.IsZero() {
		if parsed, perr := models.ParseBranchID(ref.BranchID); perr == nil {
			branchID = parsed
		}
	}
	if branchID.IsZero() {
		branch, err := m.store.EarliestBranch(ctx, row.ProjectID)
		if err != nil {
			m.log.Warn().Err(err).Str("project", row.ProjectID.String()).Msg("branch lookup failed")
			return 0
		}
		if branch == nil {
			return 0
		}
		branchID = branch.ID
	}

	return m.EnsureDefaultSkybox(ctx, row.ProjectID, branchID, row.OwnerID)
}
