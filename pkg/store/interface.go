// Package store defines the persistence boundary for the sync service.
//
// The persisted store is the source of truth for the asset hierarchy and
// for scene/settings seed data; live document state belongs to the
// document backend. Implementations: [postgres.PostgresStore] for
// deployment and [memory.MemoryStore] for tests and store-less startup.
//
// Get methods return nil without error for missing rows. List methods
// return empty slices, never nil, and always apply a bounded limit — the
// service never assumes unbounded result sets.
package store

import (
	"context"

	"github.com/pixlland/workspace-sync/pkg/models"
)

// Store is the persisted relational boundary used by the document
// lifecycle manager and the asset tree mutator.
type Store interface {
	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	GetProject(ctx context.Context, id models.ProjectID) (*models.Project, error)

	// EarliestBranch returns the oldest branch of a project, used as the
	// fallback scope when a scene row has no branch recorded.
	EarliestBranch(ctx context.Context, projectID models.ProjectID) (*models.Branch, error)

	GetScene(ctx context.Context, id int64) (*models.Scene, error)
	GetSceneByUniqueID(ctx context.Context, uniqueID string) (*models.Scene, error)
	ListScenes(ctx context.Context, limit int) ([]models.Scene, error)
	CreateScene(ctx context.Context, scene *models.Scene) error

	GetAsset(ctx context.Context, id int64) (*models.Asset, error)
	ListAssetsByIDs(ctx context.Context, ids []int64) ([]models.Asset, error)
	// ListAssets returns all assets in a project+branch scope, bounded.
	ListAssets(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, limit int) ([]models.Asset, error)
	ListAllAssets(ctx context.Context, limit int) ([]models.Asset, error)
	// FindAssetByTypeName locates a scoped asset by type and exact name,
	// used by the idempotent skybox upsert.
	FindAssetByTypeName(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, assetType, name string) (*models.Asset, error)
	CreateAsset(ctx context.Context, asset *models.Asset) error
	UpdateAssetData(ctx context.Context, id int64, data models.JSONMap) error
	UpdateAssetFile(ctx context.Context, id int64, file *models.FileInfo) error
	// DeleteAssets removes all given rows in one batch. Unknown ids are
	// silently skipped.
	DeleteAssets(ctx context.Context, ids []int64) error

	Close() error
}
