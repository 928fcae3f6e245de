package docs

import (
	"context"
	"net/url"
	"os"
	"strconv"

	"github.com/pixlland/workspace-sync/pkg/blob"
	"github.com/pixlland/workspace-sync/pkg/defaults"
	"github.com/pixlland/workspace-sync/pkg/models"
)

// EnsureDefaultSkybox finds or inserts the default skybox asset for a
// project/branch scope, uploads its env atlas once and repairs drifted
// cubemap data. Returns the asset id, or 0 when the bootstrap cannot
// complete; the result is cached per scope.
//
// Every failure short of a missing owner degrades to "no skybox" with a
// warning. Scenes render without one, so nothing here is fatal.
func (m *Manager) EnsureDefaultSkybox(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, ownerID models.UserID) int64 {
	if !m.opts.SkyboxEnabled || m.store == nil {
		return 0
	}

	cacheKey := projectID.String() + ":" + branchID.String()
	m.mu.Lock()
	if id, ok := m.skyboxCache[cacheKey]; ok {
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	existing, err := m.store.FindAssetByTypeName(ctx, projectID, branchID, defaults.SkyboxAssetType, defaults.SkyboxAssetName)
	if err != nil {
		m.log.Warn().Err(err).Str("project", projectID.String()).Msg("skybox lookup failed")
		return 0
	}

	if ownerID.IsZero() {
		project, perr := m.store.GetProject(ctx, projectID)
		if perr != nil {
			m.log.Warn().Err(perr).Str("project", projectID.String()).Msg("project lookup failed")
			return 0
		}
		if project == nil || project.OwnerID.IsZero() {
			m.log.Warn().Str("project", projectID.String()).Msg("no owner for skybox asset, skipping")
			return 0
		}
		ownerID = project.OwnerID
	}

	asset := existing
	if asset == nil {
		asset = &models.Asset{
			ProjectID: projectID,
			BranchID:  branchID,
			OwnerID:   ownerID,
			Name:      defaults.SkyboxAssetName,
			Type:      defaults.SkyboxAssetType,
			Data:      defaults.SkyboxData(),
		}
		asset.SetPath(models.IDList{})
		if err := m.store.CreateAsset(ctx, asset); err != nil {
			m.log.Warn().Err(err).Str("project", projectID.String()).Msg("skybox insert failed")
			return 0
		}
		m.log.Info().Int64("asset", asset.ID).Str("project", projectID.String()).Msg("created default skybox asset")
	}

	hasFile := asset.File != nil && asset.File.StoragePath != "" && asset.File.Filename == defaults.SkyboxFilename
	if !hasFile {
		if !m.uploadSkyboxFile(ctx, asset, projectID, branchID) {
			return 0
		}
	}

	if defaults.SkyboxDataDrifted(asset.Data) {
		repaired := asset.Data.Clone()
		if repaired == nil {
			repaired = models.JSONMap{}
		}
		for k, v := range defaults.SkyboxData() {
			repaired[k] = v
		}
		if err := m.store.UpdateAssetData(ctx, asset.ID, repaired); err != nil {
			m.log.Warn().Err(err).Int64("asset", asset.ID).Msg("skybox data repair failed")
		}
	}

	m.mu.Lock()
	m.skyboxCache[cacheKey] = asset.ID
	m.mu.Unlock()
	return asset.ID
}

func (m *Manager) uploadSkyboxFile(ctx context.Context, asset *models.Asset, projectID models.ProjectID, branchID models.BranchID) bool {
	if m.bucket == nil || m.opts.SkyboxSource == "" {
		m.log.Warn().Int64("asset", asset.ID).Msg("no skybox source configured, skipping upload")
		return false
	}
	payload, err := os.ReadFile(m.opts.SkyboxSource)
	if err != nil {
		m.log.Warn().Err(err).Str("source", m.opts.SkyboxSource).Msg("skybox source unreadable")
		return false
	}

	storagePath := blob.StoragePath(projectID.String(), branchID.String(), asset.ID, defaults.SkyboxFilename)
	if err := m.bucket.Upload(ctx, storagePath, defaults.SkyboxMime, payload); err != nil {
		m.log.Warn().Err(err).Str("path", storagePath).Msg("skybox upload failed")
		return false
	}

	file := &models.FileInfo{
		Filename:    defaults.SkyboxFilename,
		Size:        int64(len(payload)),
		Mime:        defaults.SkyboxMime,
		URL:         "/api/assets/" + strconv.FormatInt(asset.ID, 10) + "/file/" + url.PathEscape(defaults.SkyboxFilename),
		StoragePath: storagePath,
	}
	if err := m.store.UpdateAssetFile(ctx, asset.ID, file); err != nil {
		// the blob landed; the next pass records the descriptor
		m.log.Warn().Err(err).Int64("asset", asset.ID).Msg("skybox file record failed")
	}
	asset.File = file
	return true
}
