package query

import (
	"time"
)

// Ranking fields and constants
const (
	ScoreMultiplierField = "scoreMultiplier"
	CreatedAtField       = "createdAt"

	// BoostWindow is how far back a listing still receives a recency boost
	BoostWindow = 18 * 24 * time.Hour
	// MaxRecencyBoost is the extra weight reached at the end of the window
	MaxRecencyBoost = 0.5

	// RankingScriptVersion changes whenever recencyScript changes
	RankingScriptVersion = "1.0.0"
)

// recencyScript returns the recency factor for a document. The factor grows
// linearly with age inside the window, from 1.0 at creation to 1.5 at the edge.
const recencyScript = `if (doc['createdAt'].size() == 0) {
  return 1.0;
}
double age = params.now - doc['createdAt'].value;
if (age < 0 || age > params.boostWindow) {
  return 1.0;
}
return 1.0 + (age / params.boostWindow) * params.maxBoost;`

// RecencyScript returns the script evaluated by the index for a request made at now
func RecencyScript(now time.Time) Script {
	return Script{
		Source: recencyScript,
		Params: map[string]any{
			"now":         now.Unix(),
			"boostWindow": int64(BoostWindow.Seconds()),
			"maxBoost":    MaxRecencyBoost,
		},
	}
}

// Rank wraps a query so its relevance score is multiplied by the stored score
// multiplier (1 when missing) and by the recency factor.
func Rank(q Query, now time.Time) *FunctionScoreQuery {
	return &FunctionScoreQuery{
		Query: q,
		Functions: []ScoreFunction{
			FieldValueFactor{Field: ScoreMultiplierField, Missing: 1},
			ScriptScore{Script: RecencyScript(now)},
		},
		ScoreMode: "multiply",
		BoostMode: "multiply",
	}
}

// RecencyBoost is the Go form of recencyScript. createdAt is in unix seconds.
func RecencyBoost(createdAt *int64, now time.Time) float64 {
	if createdAt == nil {
		return 1.0
	}
	age := float64(now.Unix() - *createdAt)
	window := BoostWindow.Seconds()
	if age < 0 || age > window {
		return 1.0
	}
	return 1.0 + (age/window)*MaxRecencyBoost
}

// FinalScore is the Go form of the score Rank produces for one document
func FinalScore(base float64, multiplier *float64, createdAt *int64, now time.Time) float64 {
	m := 1.0
	if multiplier != nil {
		m = *multiplier
	}
	return base * m * RecencyBoost(createdAt, now)
}
