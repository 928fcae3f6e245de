// Package postgres implements the
// [github.com/pixlland/workspace-sync/pkg/store.Store] interface on
// PostgreSQL through GORM. The schema mirrors the rows the editor's
// CRUD API writes; this service only reads seeds and rewrites asset
// hierarchy data.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store"
)

type PostgresStore struct {
	db *gorm.DB
}

var _ store.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database behind dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates or updates the projects, branches, scenes and assets
// tables. AutoMigrate only adds schema elements, so it is safe to run on
// every startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Project{},
		&models.Branch{},
		&models.Scene{},
		&models.Asset{},
	)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) GetProject(ctx context.Context, id models.ProjectID) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *PostgresStore) EarliestBranch(ctx context.Context, projectID models.ProjectID) (*models.Branch, error) {
	var branch models.Branch
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID.String()).
		Order("created_at ASC").
		First(&branch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *PostgresStore) GetScene(ctx context.Context, id int64) (*models.Scene, error) {
	var scene models.Scene
	err := s.db.WithContext(ctx).First(&scene, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scene, nil
}

func (s *PostgresStore) GetSceneByUniqueID(ctx context.Context, uniqueID string) (*models.Scene, error) {
	var scene models.Scene
	err := s.db.WithContext(ctx).First(&scene, "unique_id = ?", uniqueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scene, nil
}

func (s *PostgresStore) ListScenes(ctx context.Context, limit int) ([]models.Scene, error) {
	scenes := []models.Scene{}
	err := s.db.WithContext(ctx).Order("id ASC").Limit(limit).Find(&scenes).Error
	if err != nil {
		return nil, err
	}
	return scenes, nil
}

func (s *PostgresStore) CreateScene(ctx context.Context, scene *models.Scene) error {
	return s.db.WithContext(ctx).Create(scene).Error
}

func (s *PostgresStore) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *PostgresStore) ListAssetsByIDs(ctx context.Context, ids []int64) ([]models.Asset, error) {
	if len(ids) == 0 {
		return []models.Asset{}, nil
	}
	assets := []models.Asset{}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Limit(len(ids)).Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, limit int) ([]models.Asset, error) {
	assets := []models.Asset{}
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND branch_id = ?", projectID.String(), branchID.String()).
		Order("id ASC").
		Limit(limit).
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *PostgresStore) ListAllAssets(ctx context.Context, limit int) ([]models.Asset, error) {
	assets := []models.Asset{}
	err := s.db.WithContext(ctx).Order("id ASC").Limit(limit).Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *PostgresStore) FindAssetByTypeName(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, assetType, name string) (*models.Asset, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND branch_id = ? AND type = ? AND name = ?",
			projectID.String(), branchID.String(), assetType, name).
		First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *PostgresStore) CreateAsset(ctx context.Context, asset *models.Asset) error {
	return s.db.WithContext(ctx).Create(asset).Error
}

func (s *PostgresStore) UpdateAssetData(ctx context.Context, id int64, data models.JSONMap) error {
	return s.db.WithContext(ctx).
		Model(&models.Asset{}).
		Where("id = ?", id).
		Updates(map[string]any{"data": data, "updated_at": time.Now()}).Error
}

func (s *PostgresStore) UpdateAssetFile(ctx context.Context, id int64, file *models.FileInfo) error {
	return s.db.WithContext(ctx).
		Model(&models.Asset{}).
		Where("id = ?", id).
		Updates(map[string]any{"file": file, "updated_at": time.Now()}).Error
}

func (s *PostgresStore) DeleteAssets(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Asset{}).Error
}
