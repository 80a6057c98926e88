package query

import (
	"strings"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// Index fields the builder targets
const (
	AllTextField   = "all_text" // Composite of title, description and categories
	TitleField     = "title"
	StatusField    = "status"
	ValidField     = "valid"
	ScoreTagsField = "scoreTags"
)

// Text matching parameters
const (
	Fuzziness  = "AUTO"
	TitleBoost = 2.0
	PhraseSlop = 50
)

// Built holds the two query trees derived from one request
type Built struct {
	// Ranked decides inclusion and carries the relevance clauses
	Ranked *BoolQuery
	// Aggregation selects the same population with every relevance clause removed
	Aggregation *BoolQuery
}

// Build translates free text and filters into the ranked and aggregation queries.
// Whitespace-only text is treated as no text.
func Build(text string, filters []types.Filter) (*Built, error) {
	clauses, err := ParseFilters(filters)
	if err != nil {
		return nil, err
	}
	return BuildClauses(text, clauses), nil
}

// BuildClauses is Build for filters that were already parsed
func BuildClauses(text string, filters []FilterClause) *Built {
	ranked := &BoolQuery{}

	text = strings.TrimSpace(text)
	if text != "" {
		ranked.Must = append(ranked.Must, MatchQuery{Field: AllTextField, Text: text, Fuzziness: Fuzziness})
		ranked.Should = append(ranked.Should,
			MatchQuery{Field: TitleField, Text: text, Fuzziness: Fuzziness, Boost: TitleBoost},
			MatchPhraseQuery{Field: AllTextField, Text: text, Slop: PhraseSlop},
		)
	} else {
		ranked.Must = append(ranked.Must, MatchAllQuery{})
	}

	ranked.MustNot = append(ranked.MustNot, visibilityRules()...)

	for _, f := range filters {
		ranked.Filter = append(ranked.Filter, f.Query())
	}

	aggregation := ranked.Clone()
	aggregation.Should = nil

	return &Built{Ranked: ranked, Aggregation: aggregation}
}

// visibilityRules exclude withdrawn, invalid and moderated-away listings
func visibilityRules() []Query {
	return []Query{
		TermQuery{Field: StatusField, Value: types.StatusWithdrawn},
		TermQuery{Field: ValidField, Value: false},
		TermsQuery{Field: ScoreTagsField, Values: append([]string(nil), types.HiddenScoreTags...)},
	}
}
