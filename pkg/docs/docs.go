// Package docs ensures live documents exist before clients operate on
// them. Scenes and settings are created from built-in defaults and
// migrated toward the current default shape; assets and user data are
// created from persisted rows when the store is reachable and from
// placeholders when it is not.
//
// Every entry point is idempotent and tolerates concurrent callers: the
// fetch-before-create sequence means a lost creation race is a no-op.
// Store failures are logged and degrade to defaults; they never block
// document availability.
package docs

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/blob"
	"github.com/pixlland/workspace-sync/pkg/defaults"
	"github.com/pixlland/workspace-sync/pkg/merge"
	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store"
)

// Options tunes the default-skybox bootstrap.
type Options struct {
	// SkyboxEnabled toggles the environment-map enrichment entirely.
	SkyboxEnabled bool
	// SkyboxSource is the path of the bundled env atlas uploaded once
	// per project/branch. An unreadable source skips the enrichment.
	SkyboxSource string
}

// Manager owns document creation and migration. The store and bucket
// may be nil; both are best-effort enrichment, never hard dependencies.
type Manager struct {
	store  store.Store
	bucket blob.Bucket
	conn   backend.Connection
	log    zerolog.Logger
	opts   Options

	mu          sync.Mutex
	skyboxCache map[string]int64
}

func NewManager(st store.Store, bucket blob.Bucket, conn backend.Connection, log zerolog.Logger, opts Options) *Manager {
	return &Manager{
		store:       st,
		bucket:      bucket,
		conn:        conn,
		log:         log,
		opts:        opts,
		skyboxCache: make(map[string]int64),
	}
}

// Ensure demand-creates the document named by a wire envelope. Unknown
// collections are ignored.
func (m *Manager) Ensure(ctx context.Context, collection, id string) {
	switch collection {
	case "scenes":
		m.EnsureScene(ctx, RefForSceneID(id))
	case "assets":
		m.EnsureAsset(ctx, id)
	case "settings":
		m.EnsureSettings(ctx, id)
	case "user_data":
		m.EnsureUserData(ctx, id)
	}
}

// EnsureSettings creates a settings document with scope-dependent
// defaults, or merges an existing one toward them, patching only when
// the merged value differs from the stored one.
func (m *Manager) EnsureSettings(ctx context.Context, id string) {
	def := defaults.SettingsFor(id)
	doc := m.conn.Get("settings", id)
	if err := doc.Fetch(ctx); err != nil {
		m.log.Error().Err(err).Str("doc", "settings:"+id).Msg("fetch failed")
		return
	}

	if !doc.Exists() {
		if err := doc.Create(ctx, map[string]any(def)); err != nil {
			m.log.Error().Err(err).Str("doc", "settings:"+id).Msg("create failed")
		}
		return
	}

	current, _ := doc.Data().(map[string]any)
	if current == nil {
		current = map[string]any{}
	}
	next := merge.Defaults(current, map[string]any(def))
	if merge.Equal(current, next) {
		return
	}
	if err := doc.SubmitReplace(ctx, nil, next); err != nil {
		m.log.Error().Err(err).Str("doc", "settings:"+id).Msg("patch failed")
	}
}

// EnsureAsset creates an asset document from its persisted row when the
// store can resolve it, and from a placeholder shape otherwise.
func (m *Manager) EnsureAsset(ctx context.Context, id string) {
	doc := m.conn.Get("assets", id)
	if err := doc.Fetch(ctx); err != nil {
		m.log.Error().Err(err).Str("doc", "assets:"+id).Msg("fetch failed")
		return
	}
	if doc.Exists() {
		return
	}

	payload := m.assetPayload(ctx, id)
	if payload == nil {
		payload = placeholderAsset(id)
	}
	if err := doc.Create(ctx, payload); err != nil {
		m.log.Error().Err(err).Str("doc", "assets:"+id).Msg("create failed")
	}
}

// EnsureUserData creates an empty user_data document if absent.
func (m *Manager) EnsureUserData(ctx context.Context, id string) {
	doc := m.conn.Get("user_data", id)
	if err := doc.Fetch(ctx); err != nil {
		m.log.Error().Err(err).Str("doc", "user_data:"+id).Msg("fetch failed")
		return
	}
	if doc.Exists() {
		return
	}
	if err := doc.Create(ctx, map[string]any{}); err != nil {
		m.log.Error().Err(err).Str("doc", "user_data:"+id).Msg("create failed")
	}
}

// assetPayload resolves the real persisted row for a numeric asset id.
// Returns nil when the store is absent or the row is missing.
func (m *Manager) assetPayload(ctx context.Context, id string) map[string]any {
	if m.store == nil {
		return nil
	}
	numeric, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	row, err := m.store.GetAsset(ctx, numeric)
	if err != nil {
		m.log.Warn().Err(err).Str("doc", "assets:"+id).Msg("store lookup failed")
		return nil
	}
	if row == nil {
		return nil
	}
	return assetDocPayload(row)
}

func assetDocPayload(row *models.Asset) map[string]any {
	data := row.Data.Clone()
	if data == nil {
		data = models.JSONMap{}
	}
	preload := true
	if b, ok := data["preload"].(bool); ok {
		preload = b
	}
	source := true
	if b, ok := data["source"].(bool); ok {
		source = b
	}
	var file any = map[string]any{}
	if row.File != nil {
		file = *row.File
	}
	branch := "local"
	if !row.BranchID.IsZero() {
		branch = row.BranchID.String()
	}
	var sourceAssetID any
	if row.SourceAssetID != nil {
		sourceAssetID = *row.SourceAssetID
	}
	return map[string]any{
		"item_id":         row.ID,
		"branch_id":       branch,
		"name":            row.Name,
		"type":            row.Type,
		"file":            file,
		"data":            map[string]any(data),
		"tags":            []any{},
		"path":            row.Path().ToAny(),
		"preload":         preload,
		"has_thumbnail":   false,
		"source":          source,
		"source_asset_id": sourceAssetID,
	}
}

func placeholderAsset(id string) map[string]any {
	return map[string]any{
		"item_id":         itemID(id),
		"branch_id":       "local",
		"name":            "Asset " + id,
		"type":            "unknown",
		"file":            map[string]any{},
		"data":            map[string]any{},
		"tags":            []any{},
		"path":            []any{},
		"preload":         true,
		"has_thumbnail":   false,
		"source":          true,
		"source_asset_id": nil,
	}
}

// itemID keeps numeric document ids numeric in payloads and passes
// opaque string ids through untouched.
func itemID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
