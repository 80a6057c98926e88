package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// tagWeights are the multipliers applied for moderation tags. Tags not listed
// here do not affect the score.
var tagWeights = map[string]float64{
	types.TagHide:       0,
	types.TagDelete:     0,
	types.TagLowQuality: 0.1,
	types.TagFeatured:   3.0,
}

// Content quality penalties
const (
	NoMediaPenalty          = 0.75
	ShortTitlePenalty       = 0.5
	EmptyDescriptionPenalty = 0.8

	MinTitleLength = 4
)

// Score computes the static quality multiplier of a listing from its moderation
// tags and content. The result is always >= 0.
func Score(l *types.Listing) float64 {
	score := 1.0

	for _, tag := range uniqueTags(l.ScoreTags) {
		if w, ok := tagWeights[tag]; ok {
			score *= w
		}
	}
	if score == 0 {
		return 0
	}

	if len(l.Media) == 0 {
		score *= NoMediaPenalty
	}
	if len([]rune(strings.TrimSpace(l.Title))) < MinTitleLength {
		score *= ShortTitlePenalty
	}
	if strings.TrimSpace(l.Description) == "" {
		score *= EmptyDescriptionPenalty
	}

	return score
}

// Policy scores listings, remembering results for inputs it has already seen
type Policy struct {
	cache *Cache
}

// NewPolicy creates a Policy. A nil cache disables memoization.
func NewPolicy(cache *Cache) *Policy {
	return &Policy{cache: cache}
}

// Score returns the quality multiplier of l
func (p *Policy) Score(l *types.Listing) float64 {
	if p.cache == nil {
		return Score(l)
	}

	key := InputHash(l)
	if score, ok := p.cache.Get(key); ok {
		return score
	}
	score := Score(l)
	p.cache.Set(key, score)
	return score
}

// InputHash hashes exactly the listing fields Score reads, so two listings with the
// same hash always score the same.
func InputHash(l *types.Listing) string {
	var b strings.Builder
	b.WriteString(strings.Join(uniqueTags(l.ScoreTags), ","))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(len(l.Media)))
	b.WriteString("|")
	b.WriteString(strings.TrimSpace(l.Title))
	b.WriteString("|")
	b.WriteString(strconv.FormatBool(strings.TrimSpace(l.Description) == ""))

	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

// uniqueTags returns the tags sorted and without duplicates
func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
