// Package memory provides an in-memory implementation of the
// [github.com/pixlland/workspace-sync/pkg/store.Store] interface. It
// backs tests and lets the service come up without a reachable database,
// where the persisted store degrades to best-effort enrichment.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store"
)

// MemoryStore keeps rows in maps guarded by a single mutex. Rows are
// copied on the way in and out so callers can't alias internal state.
type MemoryStore struct {
	mu          sync.Mutex
	projects    map[models.ProjectID]models.Project
	branches    map[models.BranchID]models.Branch
	scenes      map[int64]models.Scene
	assets      map[int64]models.Asset
	nextSceneID int64
	nextAssetID int64
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[models.ProjectID]models.Project),
		branches:    make(map[models.BranchID]models.Branch),
		scenes:      make(map[int64]models.Scene),
		assets:      make(map[int64]models.Asset),
		nextSceneID: 1,
		nextAssetID: 1,
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// PutProject seeds a project row (test helper).
func (s *MemoryStore) PutProject(p models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = models.NewProjectID()
	}
	s.projects[p.ID] = p
}

// PutBranch seeds a branch row (test helper).
func (s *MemoryStore) PutBranch(b models.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = models.NewBranchID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	s.branches[b.ID] = b
}

func (s *MemoryStore) GetProject(ctx context.Context, id models.ProjectID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (s *MemoryStore) EarliestBranch(ctx context.Context, projectID models.ProjectID) (*models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *models.Branch
	for _, b := range s.branches {
		if b.ProjectID != projectID {
			continue
		}
		b := b
		if earliest == nil || b.CreatedAt.Before(earliest.CreatedAt) {
			earliest = &b
		}
	}
	return earliest, nil
}

func (s *MemoryStore) GetScene(ctx context.Context, id int64) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scenes[id]
	if !ok {
		return nil, nil
	}
	out := sc
	return &out, nil
}

func (s *MemoryStore) GetSceneByUniqueID(ctx context.Context, uniqueID string) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.scenes {
		if sc.UniqueID == uniqueID {
			out := sc
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListScenes(ctx context.Context, limit int) ([]models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateScene(ctx context.Context, scene *models.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scene.ID == 0 {
		scene.ID = s.nextSceneID
		s.nextSceneID++
	} else if scene.ID >= s.nextSceneID {
		s.nextSceneID = scene.ID + 1
	}
	if scene.UniqueID == "" {
		scene.UniqueID = formatID(scene.ID)
	}
	now := time.Now()
	scene.CreatedAt = now
	scene.UpdatedAt = now
	s.scenes[scene.ID] = *scene
	return nil
}

func (s *MemoryStore) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	out := copyAsset(a)
	return &out, nil
}

func (s *MemoryStore) ListAssetsByIDs(ctx context.Context, ids []int64) ([]models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.assets[id]; ok {
			out = append(out, copyAsset(a))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAssets(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, limit int) ([]models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Asset, 0)
	for _, a := range s.assets {
		if a.ProjectID == projectID && a.BranchID == branchID {
			out = append(out, copyAsset(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListAllAssets(ctx context.Context, limit int) ([]models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, copyAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindAssetByTypeName(ctx context.Context, projectID models.ProjectID, branchID models.BranchID, assetType, name string) (*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if a.ProjectID == projectID && a.BranchID == branchID && a.Type == assetType && a.Name == name {
			out := copyAsset(a)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateAsset(ctx context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if asset.ID == 0 {
		asset.ID = s.nextAssetID
		s.nextAssetID++
	} else if asset.ID >= s.nextAssetID {
		s.nextAssetID = asset.ID + 1
	}
	now := time.Now()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	s.assets[asset.ID] = copyAsset(*asset)
	return nil
}

func (s *MemoryStore) UpdateAssetData(ctx context.Context, id int64, data models.JSONMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil
	}
	a.Data = data.Clone()
	a.UpdatedAt = time.Now()
	s.assets[id] = a
	return nil
}

func (s *MemoryStore) UpdateAssetFile(ctx context.Context, id int64, file *models.FileInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil
	}
	if file != nil {
		f := *file
		a.File = &f
	} else {
		a.File = nil
	}
	a.UpdatedAt = time.Now()
	s.assets[id] = a
	return nil
}

func (s *MemoryStore) DeleteAssets(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.assets, id)
	}
	return nil
}

func copyAsset(a models.Asset) models.Asset {
	out := a
	out.Data = a.Data.Clone()
	if a.File != nil {
		f := *a.File
		out.File = &f
	}
	if a.SourceAssetID != nil {
		v := *a.SourceAssetID
		out.SourceAssetID = &v
	}
	return out
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
