// Package assettree mutates the persisted asset hierarchy. The tree is
// materialized: every row stores its ordered ancestor id chain, and the
// parent pointer is always derived from the last chain element. All four
// operations keep that invariant, update the persisted rows first and
// then patch any live asset documents so connected editors converge.
package assettree

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/models"
	"github.com/pixlland/workspace-sync/pkg/store"
)

// treeScanLimit bounds the rows loaded when resolving descendants.
const treeScanLimit = 5000

// PathPatch is one rewritten path, broadcast to editors after a move.
type PathPatch struct {
	UniqueID int64         `json:"uniqueId"`
	Path     models.IDList `json:"path"`
}

// Mutator applies tree operations against the store and patches live
// documents through the service connection.
type Mutator struct {
	store store.Store
	conn  backend.Connection
	log   zerolog.Logger
}

func NewMutator(st store.Store, conn backend.Connection, log zerolog.Logger) *Mutator {
	return &Mutator{store: st, conn: conn, log: log}
}

// Move reparents the selected assets under the target folder, or to the
// root when target is nil. Selected assets that sit inside another
// selected asset's subtree ride along with it and are not re-pathed
// twice. Descendants of every moved root are rewritten to keep their
// chains rooted in the new location. Returns every rewritten path.
func (m *Mutator) Move(ctx context.Context, ids []int64, target *int64) ([]PathPatch, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	rows, err := m.store.ListAssetsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}
	if len(rows) == 0 {
		return []PathPatch{}, nil
	}

	selected := make(map[int64]bool, len(rows))
	for _, r := range rows {
		selected[r.ID] = true
	}

	targetPath := models.IDList{}
	if target != nil {
		folder, err := m.store.GetAsset(ctx, *target)
		if err != nil {
			return nil, fmt.Errorf("load target: %w", err)
		}
		if folder == nil {
			return nil, fmt.Errorf("target asset %d not found", *target)
		}
		targetPath = append(folder.Path(), folder.ID)
	}
	inTargetChain := make(map[int64]bool, len(targetPath))
	for _, id := range targetPath {
		inTargetChain[id] = true
	}

	roots := make([]*models.Asset, 0, len(rows))
	for i := range rows {
		if isMovingRoot(&rows[i], selected) {
			roots = append(roots, &rows[i])
		}
	}
	if len(roots) == 0 {
		return []PathPatch{}, nil
	}

	all, err := m.scopeScan(ctx, roots[0])
	if err != nil {
		return nil, err
	}

	patches := make([]PathPatch, 0, len(rows))
	for _, root := range roots {
		// a folder cannot be moved into its own subtree
		if inTargetChain[root.ID] {
			m.log.Warn().Int64("asset", root.ID).Msg("skipping move into own subtree")
			continue
		}

		oldChain := append(root.Path(), root.ID)
		if patch, err := m.rewritePath(ctx, root, targetPath); err != nil {
			return nil, err
		} else if patch != nil {
			patches = append(patches, *patch)
		}

		newChain := append(append(models.IDList{}, targetPath...), root.ID)
		for j := range all {
			desc := &all[j]
			if desc.ID == root.ID || !desc.Path().HasPrefix(oldChain) {
				continue
			}
			rebased := append(append(models.IDList{}, newChain...), desc.Path()[len(oldChain):]...)
			if patch, err := m.rewritePath(ctx, desc, rebased); err != nil {
				return nil, err
			} else if patch != nil {
				patches = append(patches, *patch)
			}
		}
	}
	return patches, nil
}

// scopeScan loads the rows sharing a reference row's project+branch
// scope, the universe for descendant prefix matching. The scan is never
// cross-project.
func (m *Mutator) scopeScan(ctx context.Context, ref *models.Asset) ([]models.Asset, error) {
	all, err := m.store.ListAssets(ctx, ref.ProjectID, ref.BranchID, treeScanLimit)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	return all, nil
}

// isMovingRoot reports whether none of the row's ancestors is also part
// of the selection.
func isMovingRoot(row *models.Asset, selected map[int64]bool) bool {
	for _, ancestor := range row.Path() {
		if selected[ancestor] {
			return false
		}
	}
	return true
}

// rewritePath persists a new ancestor chain for one row and patches its
// live document. Unchanged paths are left alone.
func (m *Mutator) rewritePath(ctx context.Context, row *models.Asset, path models.IDList) (*PathPatch, error) {
	if samePath(row.Path(), path) {
		return nil, nil
	}
	row.SetPath(path)
	if err := m.store.UpdateAssetData(ctx, row.ID, row.Data); err != nil {
		return nil, fmt.Errorf("update asset %d: %w", row.ID, err)
	}
	m.patchAssetDoc(ctx, row.ID, path)
	return &PathPatch{UniqueID: row.ID, Path: path}, nil
}

func samePath(a, b models.IDList) bool {
	return len(a) == len(b) && a.HasPrefix(b)
}

// patchAssetDoc pushes the new path into a live asset document. Absent
// documents are skipped; editors that open them later read the store.
func (m *Mutator) patchAssetDoc(ctx context.Context, id int64, path models.IDList) {
	doc := m.conn.Get("assets", strconv.FormatInt(id, 10))
	if err := doc.Fetch(ctx); err != nil {
		m.log.Warn().Err(err).Int64("asset", id).Msg("doc fetch failed")
		return
	}
	if !doc.Exists() {
		return
	}
	wire := path.ToAny()
	if err := doc.SubmitReplace(ctx, []string{"path"}, wire); err != nil {
		m.log.Warn().Err(err).Int64("asset", id).Msg("doc path patch failed")
	}
	if err := doc.SubmitReplace(ctx, []string{"data", "path"}, wire); err != nil {
		m.log.Warn().Err(err).Int64("asset", id).Msg("doc data patch failed")
	}
}

// Delete removes the selected assets. Folders expand to their whole
// subtree by path prefix. All rows go in one batch; returns every
// deleted id.
func (m *Mutator) Delete(ctx context.Context, ids []int64) ([]int64, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	rows, err := m.store.ListAssetsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}
	if len(rows) == 0 {
		return []int64{}, nil
	}

	doomed := make(map[int64]bool, len(rows))
	for _, r := range rows {
		doomed[r.ID] = true
	}

	var all []models.Asset
	for _, r := range rows {
		if !r.IsFolder() {
			continue
		}
		if all == nil {
			all, err = m.scopeScan(ctx, &rows[0])
			if err != nil {
				return nil, err
			}
		}
		chain := append(r.Path(), r.ID)
		for _, desc := range all {
			if desc.Path().HasPrefix(chain) {
				doomed[desc.ID] = true
			}
		}
	}

	deleted := make([]int64, 0, len(doomed))
	for id := range doomed {
		deleted = append(deleted, id)
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })

	if err := m.store.DeleteAssets(ctx, deleted); err != nil {
		return nil, fmt.Errorf("delete assets: %w", err)
	}
	return deleted, nil
}

// Duplicate clones the selected assets in place, subtree included. Each
// selected root keeps its parent and gains a copy-counter name;
// descendants keep their names. Ancestor chains inside the clone are
// remapped to the new ids. Returns the created rows.
func (m *Mutator) Duplicate(ctx context.Context, ids []int64) ([]models.Asset, error) {
	return m.clone(ctx, ids, cloneInPlace{})
}

// Paste clones the selected assets under a new parent, root when nil,
// optionally into another branch. Pasted roots are renamed with a
// running copy counter so repeated pastes stay distinguishable.
func (m *Mutator) Paste(ctx context.Context, ids []int64, branch models.BranchID, target *int64) ([]models.Asset, error) {
	targetPath := models.IDList{}
	if target != nil {
		folder, err := m.store.GetAsset(ctx, *target)
		if err != nil {
			return nil, fmt.Errorf("load target: %w", err)
		}
		if folder == nil {
			return nil, fmt.Errorf("target asset %d not found", *target)
		}
		targetPath = append(folder.Path(), folder.ID)
	}
	return m.clone(ctx, ids, cloneRetarget{branch: branch, path: targetPath})
}

// cloneMode decides where clone roots land and what they are named.
type cloneMode interface {
	rootPath(original models.IDList) models.IDList
	rootName(name string) string
	branchFor(original models.BranchID) models.BranchID
}

type cloneInPlace struct{}

func (cloneInPlace) rootPath(original models.IDList) models.IDList { return original }
func (cloneInPlace) rootName(name string) string                   { return nextCopyName(name) }
func (cloneInPlace) branchFor(b models.BranchID) models.BranchID   { return b }

type cloneRetarget struct {
	branch models.BranchID
	path   models.IDList
}

func (c cloneRetarget) rootPath(models.IDList) models.IDList { return c.path }
func (c cloneRetarget) rootName(name string) string          { return nextCopyName(name) }
func (c cloneRetarget) branchFor(b models.BranchID) models.BranchID {
	if c.branch.IsZero() {
		return b
	}
	return c.branch
}

var copyCounter = regexp.MustCompile(`^(.*) Copy(?: (\d+))?$`)

// nextCopyName advances the copy counter: "Box" becomes "Box Copy",
// "Box Copy" becomes "Box Copy 2", "Box Copy 2" becomes "Box Copy 3".
func nextCopyName(name string) string {
	match := copyCounter.FindStringSubmatch(name)
	if match == nil {
		return name + " Copy"
	}
	if match[2] == "" {
		return match[1] + " Copy 2"
	}
	n, err := strconv.Atoi(match[2])
	if err != nil {
		return name + " Copy"
	}
	return fmt.Sprintf("%s Copy %d", match[1], n+1)
}

func (m *Mutator) clone(ctx context.Context, ids []int64, mode cloneMode) ([]models.Asset, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	rows, err := m.store.ListAssetsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}
	if len(rows) == 0 {
		return []models.Asset{}, nil
	}

	selected := make(map[int64]bool, len(rows))
	for _, r := range rows {
		selected[r.ID] = true
	}

	// gather the full subtree of every selected root
	all, err := m.scopeScan(ctx, &rows[0])
	if err != nil {
		return nil, err
	}
	roots := make(map[int64]bool)
	originals := make(map[int64]models.Asset)
	for _, r := range rows {
		if !isMovingRoot(&r, selected) {
			continue
		}
		roots[r.ID] = true
		originals[r.ID] = r
		chain := append(r.Path(), r.ID)
		for _, desc := range all {
			if desc.Path().HasPrefix(chain) {
				originals[desc.ID] = desc
			}
		}
	}

	// parents must exist before children so their new ids can be
	// substituted into descendant chains
	ordered := make([]models.Asset, 0, len(originals))
	for _, row := range originals {
		ordered = append(ordered, row)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if len(a.Path()) != len(b.Path()) {
			return len(a.Path()) < len(b.Path())
		}
		return a.ID < b.ID
	})

	idMap := make(map[int64]int64, len(ordered))
	created := make([]models.Asset, 0, len(ordered))
	for _, original := range ordered {
		clone := original
		clone.ID = 0
		clone.BranchID = mode.branchFor(original.BranchID)
		clone.Data = original.Data.Clone()
		sourceID := original.ID
		clone.SourceAssetID = &sourceID

		var path models.IDList
		if roots[original.ID] {
			clone.Name = mode.rootName(original.Name)
			path = remapChain(mode.rootPath(original.Path()), idMap)
		} else {
			path = remapChain(original.Path(), idMap)
		}
		clone.SetPath(path)

		if original.File != nil {
			file := *original.File
			clone.File = &file
		}
		if err := m.store.CreateAsset(ctx, &clone); err != nil {
			return nil, fmt.Errorf("clone asset %d: %w", original.ID, err)
		}
		if clone.File != nil {
			// the serving URL embeds the row id, which only exists now
			clone.File.URL = "/api/assets/" + strconv.FormatInt(clone.ID, 10) + "/file/" + clone.File.Filename
			if err := m.store.UpdateAssetFile(ctx, clone.ID, clone.File); err != nil {
				return nil, fmt.Errorf("clone asset %d file: %w", original.ID, err)
			}
		}
		idMap[original.ID] = clone.ID
		created = append(created, clone)
	}
	return created, nil
}

// remapChain substitutes cloned ancestor ids into a chain; ids outside
// the clone set pass through, so in-place duplicates keep their parent.
func remapChain(chain models.IDList, idMap map[int64]int64) models.IDList {
	out := make(models.IDList, len(chain))
	for i, id := range chain {
		if mapped, ok := idMap[id]; ok {
			out[i] = mapped
		} else {
			out[i] = id
		}
	}
	return out
}
