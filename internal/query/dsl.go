package query

// Query is a node of the document index query DSL
type Query interface {
	// Source returns the node as the JSON object the index engine expects
	Source() map[string]any
}

// Sorter is an explicit sort clause
type Sorter interface {
	Source() map[string]any
}

// Aggregation is a metric aggregation over the matched documents
type Aggregation interface {
	Source() map[string]any
}

// BoolQuery combines clauses: Must and Should contribute to the score, Filter and
// MustNot only decide inclusion.
type BoolQuery struct {
	Must               []Query
	MustNot            []Query
	Should             []Query
	Filter             []Query
	MinimumShouldMatch int // Omitted when zero
}

func (q *BoolQuery) Source() map[string]any {
	body := map[string]any{}
	if len(q.Must) > 0 {
		body["must"] = sources(q.Must)
	}
	if len(q.MustNot) > 0 {
		body["must_not"] = sources(q.MustNot)
	}
	if len(q.Should) > 0 {
		body["should"] = sources(q.Should)
	}
	if len(q.Filter) > 0 {
		body["filter"] = sources(q.Filter)
	}
	if q.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = q.MinimumShouldMatch
	}
	return map[string]any{"bool": body}
}

// Clone returns a copy whose clause slices can be changed independently
func (q *BoolQuery) Clone() *BoolQuery {
	return &BoolQuery{
		Must:               append([]Query(nil), q.Must...),
		MustNot:            append([]Query(nil), q.MustNot...),
		Should:             append([]Query(nil), q.Should...),
		Filter:             append([]Query(nil), q.Filter...),
		MinimumShouldMatch: q.MinimumShouldMatch,
	}
}

// MatchAllQuery matches every document with score 1
type MatchAllQuery struct{}

func (MatchAllQuery) Source() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

// MatchQuery is an analyzed full-text match
type MatchQuery struct {
	Field     string
	Text      string
	Fuzziness string  // "AUTO" scales edit distance with term length
	Boost     float64 // Omitted when zero
}

func (q MatchQuery) Source() map[string]any {
	params := map[string]any{"query": q.Text}
	if q.Fuzziness != "" {
		params["fuzziness"] = q.Fuzziness
	}
	if q.Boost != 0 {
		params["boost"] = q.Boost
	}
	return map[string]any{"match": map[string]any{q.Field: params}}
}

// MatchPhraseQuery matches terms in order, allowing Slop positions between them
type MatchPhraseQuery struct {
	Field string
	Text  string
	Slop  int
}

func (q MatchPhraseQuery) Source() map[string]any {
	return map[string]any{"match_phrase": map[string]any{
		q.Field: map[string]any{"query": q.Text, "slop": q.Slop},
	}}
}

// TermQuery is an exact, unanalyzed value match
type TermQuery struct {
	Field string
	Value any
}

func (q TermQuery) Source() map[string]any {
	return map[string]any{"term": map[string]any{q.Field: q.Value}}
}

// TermsQuery matches when the field holds any of Values
type TermsQuery struct {
	Field  string
	Values []string
}

func (q TermsQuery) Source() map[string]any {
	return map[string]any{"terms": map[string]any{q.Field: q.Values}}
}

// RangeQuery bounds a field; nil bounds are open
type RangeQuery struct {
	Field string
	Gte   any
	Lte   any
}

func (q RangeQuery) Source() map[string]any {
	bounds := map[string]any{}
	if q.Gte != nil {
		bounds["gte"] = q.Gte
	}
	if q.Lte != nil {
		bounds["lte"] = q.Lte
	}
	return map[string]any{"range": map[string]any{q.Field: bounds}}
}

// Script is an engine-side painless script
type Script struct {
	Source string
	Params map[string]any
}

func (s Script) source() map[string]any {
	body := map[string]any{"lang": "painless", "source": s.Source}
	if len(s.Params) > 0 {
		body["params"] = s.Params
	}
	return body
}

// ScoreFunction is one factor of a FunctionScoreQuery
type ScoreFunction interface {
	Source() map[string]any
}

// FieldValueFactor multiplies the score by a numeric document field
type FieldValueFactor struct {
	Field   string
	Missing float64 // Used for documents without the field
}

func (f FieldValueFactor) Source() map[string]any {
	return map[string]any{"field_value_factor": map[string]any{
		"field":   f.Field,
		"factor":  1,
		"missing": f.Missing,
	}}
}

// ScriptScore multiplies the score by the value a script returns
type ScriptScore struct {
	Script Script
}

func (f ScriptScore) Source() map[string]any {
	return map[string]any{"script_score": map[string]any{"script": f.Script.source()}}
}

// FunctionScoreQuery rescores the documents matched by Query
type FunctionScoreQuery struct {
	Query     Query
	Functions []ScoreFunction
	ScoreMode string // How function results combine with each other
	BoostMode string // How the combined result combines with the query score
}

func (q *FunctionScoreQuery) Source() map[string]any {
	body := map[string]any{"query": q.Query.Source()}
	functions := make([]any, len(q.Functions))
	for i, fn := range q.Functions {
		functions[i] = fn.Source()
	}
	body["functions"] = functions
	if q.ScoreMode != "" {
		body["score_mode"] = q.ScoreMode
	}
	if q.BoostMode != "" {
		body["boost_mode"] = q.BoostMode
	}
	return map[string]any{"function_score": body}
}

// ScriptSort orders documents by a value computed per document
type ScriptSort struct {
	Script Script
	Type   string // "number" or "string"
	Order  string // "asc" or "desc"
}

func (s *ScriptSort) Source() map[string]any {
	return map[string]any{"_script": map[string]any{
		"type":   s.Type,
		"script": s.Script.source(),
		"order":  s.Order,
	}}
}

// MetricAggregation computes a single value ("min", "max") over a numeric field
type MetricAggregation struct {
	Kind  string
	Field string
}

func (a MetricAggregation) Source() map[string]any {
	return map[string]any{a.Kind: map[string]any{"field": a.Field}}
}

func sources(queries []Query) []any {
	out := make([]any, len(queries))
	for i, q := range queries {
		out[i] = q.Source()
	}
	return out
}
