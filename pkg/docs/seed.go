package docs

import (
	"context"
	"strconv"

	"github.com/pixlland/workspace-sync/pkg/models"
)

// SeedAll pre-creates documents for persisted rows at startup so the
// first editor to connect never races demand creation. Bounded by the
// configured limits; a store-less deployment skips seeding entirely.
func (m *Manager) SeedAll(ctx context.Context, sceneLimit, assetLimit int) {
	if m.store == nil {
		m.log.Info().Msg("no store configured, skipping document seed")
		return
	}

	scenes, err := m.store.ListScenes(ctx, sceneLimit)
	if err != nil {
		m.log.Error().Err(err).Msg("scene seed query failed")
	} else {
		for i := range scenes {
			m.EnsureScene(ctx, RefForScene(&scenes[i]))
		}
		m.log.Info().Int("count", len(scenes)).Msg("seeded scene documents")
	}

	assets, err := m.store.ListAllAssets(ctx, assetLimit)
	if err != nil {
		m.log.Error().Err(err).Msg("asset seed query failed")
		return
	}
	for i := range assets {
		m.seedAssetDoc(ctx, &assets[i])
	}
	m.log.Info().Int("count", len(assets)).Msg("seeded asset documents")
}

func (m *Manager) seedAssetDoc(ctx context.Context, row *models.Asset) {
	id := strconv.FormatInt(row.ID, 10)
	doc := m.conn.Get("assets", id)
	if err := doc.Fetch(ctx); err != nil {
		m.log.Error().Err(err).Str("doc", "assets:"+id).Msg("fetch failed")
		return
	}
	if doc.Exists() {
		return
	}
	if err := doc.Create(ctx, assetDocPayload(row)); err != nil {
		m.log.Error().Err(err).Str("doc", "assets:"+id).Msg("create failed")
	}
}
