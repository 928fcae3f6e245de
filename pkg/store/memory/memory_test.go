package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlland/workspace-sync/pkg/models"
)

func TestAssetLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	project := models.NewProjectID()
	branch := models.NewBranchID()

	a := &models.Asset{ProjectID: project, BranchID: branch, Name: "Box", Type: "model"}
	require.NoError(t, s.CreateAsset(ctx, a))
	require.NotZero(t, a.ID)

	got, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Box", got.Name)

	// rows are copies, not aliases
	got.Name = "mutated"
	again, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Box", again.Name)

	missing, err := s.GetAsset(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.DeleteAssets(ctx, []int64{a.ID, 9999}))
	gone, err := s.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestListAssetsScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p1, p2 := models.NewProjectID(), models.NewProjectID()
	b1, b2 := models.NewBranchID(), models.NewBranchID()

	require.NoError(t, s.CreateAsset(ctx, &models.Asset{ProjectID: p1, BranchID: b1, Name: "a"}))
	require.NoError(t, s.CreateAsset(ctx, &models.Asset{ProjectID: p1, BranchID: b2, Name: "b"}))
	require.NoError(t, s.CreateAsset(ctx, &models.Asset{ProjectID: p2, BranchID: b1, Name: "c"}))

	scoped, err := s.ListAssets(ctx, p1, b1, 100)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "a", scoped[0].Name)

	all, err := s.ListAllAssets(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindAssetByTypeName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p, b := models.NewProjectID(), models.NewBranchID()
	require.NoError(t, s.CreateAsset(ctx, &models.Asset{ProjectID: p, BranchID: b, Type: "cubemap", Name: "Sky"}))

	got, err := s.FindAssetByTypeName(ctx, p, b, "cubemap", "Sky")
	require.NoError(t, err)
	require.NotNil(t, got)

	none, err := s.FindAssetByTypeName(ctx, p, b, "cubemap", "Other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEarliestBranch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := models.NewProjectID()
	base := time.Now()
	first := models.Branch{ID: models.NewBranchID(), ProjectID: p, Name: "main", CreatedAt: base}
	s.PutBranch(first)
	second := models.Branch{ID: models.NewBranchID(), ProjectID: p, Name: "dev", CreatedAt: base.Add(time.Second)}
	s.PutBranch(second)

	got, err := s.EarliestBranch(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	none, err := s.EarliestBranch(ctx, models.NewProjectID())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSceneUniqueIDDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sc := &models.Scene{Name: "Main Scene"}
	require.NoError(t, s.CreateScene(ctx, sc))
	assert.NotEmpty(t, sc.UniqueID)

	got, err := s.GetSceneByUniqueID(ctx, sc.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sc.ID, got.ID)
}
