package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

func goodListing() *types.Listing {
	return &types.Listing{
		ID:          "1-000-1",
		Title:       "Vintage road bike",
		Description: "Steel frame, recently serviced.",
		Media:       []types.Media{{URL: "ipfs://QmBike"}},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *types.Listing)
		want   float64
	}{
		{"complete listing", func(l *types.Listing) {}, 1.0},
		{"hidden", func(l *types.Listing) { l.ScoreTags = []string{"Hide"} }, 0},
		{"deleted", func(l *types.Listing) { l.ScoreTags = []string{"Delete"} }, 0},
		{"hidden with featured", func(l *types.Listing) { l.ScoreTags = []string{"Featured", "Hide"} }, 0},
		{"low quality", func(l *types.Listing) { l.ScoreTags = []string{"LowQuality"} }, 0.1},
		{"featured", func(l *types.Listing) { l.ScoreTags = []string{"Featured"} }, 3.0},
		{"duplicate tags count once", func(l *types.Listing) { l.ScoreTags = []string{"Featured", "Featured"} }, 3.0},
		{"unknown tag ignored", func(l *types.Listing) { l.ScoreTags = []string{"Reviewed"} }, 1.0},
		{"no media", func(l *types.Listing) { l.Media = nil }, NoMediaPenalty},
		{"short title", func(l *types.Listing) { l.Title = "Bik" }, ShortTitlePenalty},
		{"empty description", func(l *types.Listing) { l.Description = "  " }, EmptyDescriptionPenalty},
		{"featured without media", func(l *types.Listing) {
			l.ScoreTags = []string{"Featured"}
			l.Media = nil
		}, 3.0 * NoMediaPenalty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := goodListing()
			tt.mutate(l)
			assert.InDelta(t, tt.want, Score(l), 1e-9)
		})
	}
}

func TestScoreNeverNegative(t *testing.T) {
	l := &types.Listing{ScoreTags: []string{"LowQuality", "Featured", "Hide"}}
	assert.GreaterOrEqual(t, Score(l), 0.0)
}

func TestPolicyUsesCache(t *testing.T) {
	cache := NewCache(10)
	p := NewPolicy(cache)

	l := goodListing()
	l.ScoreTags = []string{"LowQuality"}

	assert.InDelta(t, 0.1, p.Score(l), 1e-9)
	assert.Equal(t, 1, cache.Size())

	// Same scoring inputs hit the same entry
	other := goodListing()
	other.ID = "1-000-2"
	other.ScoreTags = []string{"LowQuality"}
	assert.InDelta(t, 0.1, p.Score(other), 1e-9)
	assert.Equal(t, 1, cache.Size())

	// Changing a tag changes the key
	other.ScoreTags = []string{"Featured"}
	assert.InDelta(t, 3.0, p.Score(other), 1e-9)
	assert.Equal(t, 2, cache.Size())
}

func TestPolicyWithoutCache(t *testing.T) {
	p := NewPolicy(nil)
	assert.InDelta(t, 1.0, p.Score(goodListing()), 1e-9)
}

func TestInputHashIgnoresTagOrder(t *testing.T) {
	a := goodListing()
	a.ScoreTags = []string{"Featured", "LowQuality"}
	b := goodListing()
	b.ScoreTags = []string{"LowQuality", "Featured"}

	assert.Equal(t, InputHash(a), InputHash(b))
}

func TestCacheClear(t *testing.T) {
	c := NewCache(0)
	c.Set("a", 1)
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
}
