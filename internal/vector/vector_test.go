package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, name string) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultConfig(name, EntityHotel, 4))
	require.NoError(t, err)
	return idx
}

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	idx := newIndex(t, "hotel")
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Item{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0, 0}},
	}))

	got, err := idx.Search(ctx, []float32{2, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "a", got[0].Ref, "ref defaults to id")
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
	assert.Equal(t, "c", got[1].ID)
}

func TestHNSWIndex_DistanceIsSquaredL2(t *testing.T) {
	idx := newIndex(t, "hotel")
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Item{
		{ID: "same", Vector: []float32{3, 0, 0, 0}},
		{ID: "right", Vector: []float32{0, 1, 0, 0}},
		{ID: "opposite", Vector: []float32{-1, 0, 0, 0}},
	}))

	got, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 0, got[0].Distance, 1e-5)
	assert.InDelta(t, 2, got[1].Distance, 1e-5)
	assert.InDelta(t, 4, got[2].Distance, 1e-5)
}

func TestHNSWIndex_RefsAndDescriptor(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultConfig("review", EntityHotel, 4))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Item{
		{ID: "r1", Ref: "h1", Vector: []float32{1, 0, 0, 0}},
		{ID: "r2", Ref: "h1", Vector: []float32{0.8, 0.2, 0, 0}},
	}))

	got, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].Ref)
	assert.Equal(t, "h1", got[1].Ref)

	d := idx.Descriptor()
	assert.Equal(t, Descriptor{Name: "review", Dimensions: 4, Count: 2, EntityType: EntityHotel}, d)
}

func TestHNSWIndex_ReplaceAndDelete(t *testing.T) {
	idx := newIndex(t, "hotel")
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Item{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}},
	}))
	require.NoError(t, idx.Add(ctx, []Item{{ID: "a", Vector: []float32{0, 0, 1, 0}}}))
	assert.Equal(t, 2, idx.Count())

	got, err := idx.Search(ctx, []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.False(t, idx.Contains("a"))
	assert.True(t, idx.Contains("b"))

	got, err = idx.Search(ctx, []float32{0, 0, 1, 0}, 5)
	require.NoError(t, err)
	for _, n := range got {
		assert.NotEqual(t, "a", n.ID)
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := newIndex(t, "hotel")
	err := idx.Add(context.Background(), []Item{{ID: "x", Vector: []float32{1, 2}}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)

	_, err = idx.Search(context.Background(), []float32{1}, 1)
	require.ErrorAs(t, err, &dm)
}

func TestHNSWIndex_EmptyAndCancelled(t *testing.T) {
	idx := newIndex(t, "hotel")
	got, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHNSWIndex_SaveAndLoadDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	hotels := newIndex(t, "hotel")
	require.NoError(t, hotels.Add(ctx, []Item{
		{ID: "h1", Vector: []float32{1, 0, 0, 0}},
		{ID: "h2", Vector: []float32{0, 1, 0, 0}},
	}))
	require.NoError(t, hotels.Save(Path(dir, "hotel")))

	visas, err := NewHNSWIndex(DefaultConfig("visa", EntityVisa, 4))
	require.NoError(t, err)
	require.NoError(t, visas.Add(ctx, []Item{{ID: "v1", Vector: []float32{0, 0, 0, 1}}}))
	require.NoError(t, visas.Save(Path(dir, "visa")))

	cat, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"hotel", "visa"}, cat.Names())

	b, ok := cat.Get("visa")
	require.True(t, ok)
	assert.Equal(t, EntityVisa, b.Descriptor().EntityType)

	b, _ = cat.Get("hotel")
	got, err := b.Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h2", got[0].ID)
}

func TestLoadDir_Missing(t *testing.T) {
	cat, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, cat.Names())
}

func TestOpenOrCreate(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenOrCreate(dir, DefaultConfig("hotel", EntityHotel, 4))
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []Item{{ID: "h1", Vector: []float32{1, 0, 0, 0}}}))
	require.NoError(t, idx.Save(Path(dir, "hotel")))

	again, err := OpenOrCreate(dir, DefaultConfig("hotel", EntityHotel, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Count())

	_, err = OpenOrCreate(dir, DefaultConfig("hotel", EntityHotel, 8))
	var dm ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}
