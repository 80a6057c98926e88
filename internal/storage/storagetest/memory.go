// Package storagetest provides an in-memory storage.Index for tests.
//
// MemoryIndex evaluates the query DSL built by package query in Go: bool,
// match (with AUTO fuzziness), match_phrase (with slop), term, terms, range,
// match_all and function_score queries, the price script sort and min/max
// aggregations. Scripts are recognized by their source and evaluated with
// their Go counterparts; any other script is an error.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/dshills/marketplace-discovery/internal/query"
	"github.com/dshills/marketplace-discovery/internal/rates"
	"github.com/dshills/marketplace-discovery/internal/storage"
	"github.com/dshills/marketplace-discovery/pkg/types"
)

// Engine limits mirrored from Elasticsearch
const (
	// totalHitsLimit is where the hit count stops without TrackTotalHits
	totalHitsLimit = 10000
	// positionIncrementGap separates the values of a multi-valued text field
	positionIncrementGap = 100
)

var errClosed = errors.New("storagetest: index is closed")

// allTextSources are copied into the composite text field, in mapping order
var allTextSources = []string{"title", "description", "category", "subCategory"}

// MemoryIndex is a storage.Index holding documents in memory
type MemoryIndex struct {
	mu        sync.RWMutex
	docs      map[string]map[string]any
	order     []string // Insertion order breaks score ties
	requests  []storage.SearchRequest
	searchErr func(storage.SearchRequest) error
	closed    bool
}

var _ storage.Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an index holding the given listings
func NewMemoryIndex(listings ...*types.Listing) *MemoryIndex {
	m := &MemoryIndex{docs: make(map[string]map[string]any)}
	for _, l := range listings {
		if err := m.Put(context.Background(), l.ID, l); err != nil {
			panic(fmt.Sprintf("storagetest: seeding %s: %v", l.ID, err))
		}
	}
	return m
}

// FailSearches runs fn before every search; a non-nil result fails the search.
// A slow fn simulates a slow engine: the context is checked again afterwards.
func (m *MemoryIndex) FailSearches(fn func(storage.SearchRequest) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = fn
}

// Requests returns every search request received so far
func (m *MemoryIndex) Requests() []storage.SearchRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]storage.SearchRequest(nil), m.requests...)
}

// Len returns the number of stored documents
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search evaluates the request against every stored document
func (m *MemoryIndex) Search(ctx context.Context, req storage.SearchRequest) (*storage.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errClosed
	}
	m.requests = append(m.requests, req)
	fail := m.searchErr
	m.mu.Unlock()

	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []match
	for _, id := range m.order {
		doc := m.docs[id]
		ok, score, err := evaluate(req.Query, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, match{id: id, doc: doc, score: score})
		}
	}

	if err := sortMatches(matches, req.Sort); err != nil {
		return nil, err
	}

	aggs, err := aggregate(matches, req.Aggregations)
	if err != nil {
		return nil, err
	}

	total := int64(len(matches))
	if !req.TrackTotalHits && total > totalHitsLimit {
		total = totalHitsLimit
	}

	res := &storage.SearchResponse{Total: total, Hits: []storage.Hit{}, Aggregations: aggs}
	for _, mt := range page(matches, req.From, req.Size) {
		src, err := json.Marshal(project(mt.doc, req.Source))
		if err != nil {
			return nil, fmt.Errorf("storagetest: encoding %s: %w", mt.id, err)
		}
		hit := storage.Hit{ID: mt.id, Source: src}
		if len(req.Sort) == 0 {
			hit.Score = mt.score
		}
		res.Hits = append(res.Hits, hit)
	}
	return res, nil
}

// Get returns a copy of the stored listing
func (m *MemoryIndex) Get(ctx context.Context, id string) (*types.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}

	var listing types.Listing
	if err := roundTrip(doc, &listing); err != nil {
		return nil, fmt.Errorf("storagetest: decoding %s: %w", id, err)
	}
	return &listing, nil
}

// Put stores the full listing, replacing any previous version
func (m *MemoryIndex) Put(ctx context.Context, id string, listing *types.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var doc map[string]any
	if err := roundTrip(listing, &doc); err != nil {
		return fmt.Errorf("storagetest: encoding %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	if _, exists := m.docs[id]; !exists {
		m.order = append(m.order, id)
	}
	m.docs[id] = doc
	return nil
}

// Update merges fields into the stored document
func (m *MemoryIndex) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var partial map[string]any
	if err := roundTrip(fields, &partial); err != nil {
		return fmt.Errorf("storagetest: encoding update for %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	merge(doc, partial)
	return nil
}

// Close makes every later call fail
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type match struct {
	id    string
	doc   map[string]any
	score float64
}

// evaluate reports whether doc matches q and its relevance score
func evaluate(q query.Query, doc map[string]any) (bool, float64, error) {
	switch q := q.(type) {
	case nil, query.MatchAllQuery:
		return true, 1, nil

	case *query.BoolQuery:
		return evaluateBool(q, doc)

	case query.MatchQuery:
		score := matchScore(fieldTokens(doc, q.Field), analyze(q.Text), q.Fuzziness)
		if score == 0 {
			return false, 0, nil
		}
		if q.Boost != 0 {
			score *= q.Boost
		}
		return true, score, nil

	case query.MatchPhraseQuery:
		ok := phraseMatches(fieldTokens(doc, q.Field), analyze(q.Text), q.Slop)
		if !ok {
			return false, 0, nil
		}
		return true, 1, nil

	case query.TermQuery:
		for _, v := range fieldValues(doc, q.Field) {
			if termEquals(v, q.Value) {
				return true, 1, nil
			}
		}
		return false, 0, nil

	case query.TermsQuery:
		for _, v := range fieldValues(doc, q.Field) {
			for _, want := range q.Values {
				if termEquals(v, want) {
					return true, 1, nil
				}
			}
		}
		return false, 0, nil

	case query.RangeQuery:
		for _, v := range fieldValues(doc, q.Field) {
			if inRange(v, q.Gte, q.Lte) {
				return true, 1, nil
			}
		}
		return false, 0, nil

	case *query.FunctionScoreQuery:
		return evaluateFunctionScore(q, doc)
	}

	return false, 0, fmt.Errorf("storagetest: unsupported query %T", q)
}

func evaluateBool(q *query.BoolQuery, doc map[string]any) (bool, float64, error) {
	score := 0.0

	for _, c := range q.Must {
		ok, s, err := evaluate(c, doc)
		if err != nil || !ok {
			return false, 0, err
		}
		score += s
	}
	for _, c := range q.Filter {
		ok, _, err := evaluate(c, doc)
		if err != nil || !ok {
			return false, 0, err
		}
	}
	for _, c := range q.MustNot {
		ok, _, err := evaluate(c, doc)
		if err != nil {
			return false, 0, err
		}
		if ok {
			return false, 0, nil
		}
	}

	matched := 0
	for _, c := range q.Should {
		ok, s, err := evaluate(c, doc)
		if err != nil {
			return false, 0, err
		}
		if ok {
			matched++
			score += s
		}
	}

	// Without must or filter clauses at least one should clause has to match
	required := q.MinimumShouldMatch
	if required == 0 && len(q.Should) > 0 && len(q.Must) == 0 && len(q.Filter) == 0 {
		required = 1
	}
	if matched < required {
		return false, 0, nil
	}
	return true, score, nil
}

func evaluateFunctionScore(q *query.FunctionScoreQuery, doc map[string]any) (bool, float64, error) {
	ok, base, err := evaluate(q.Query, doc)
	if err != nil || !ok {
		return false, 0, err
	}
	if q.ScoreMode != "" && q.ScoreMode != "multiply" {
		return false, 0, fmt.Errorf("storagetest: unsupported score_mode %q", q.ScoreMode)
	}
	if q.BoostMode != "" && q.BoostMode != "multiply" {
		return false, 0, fmt.Errorf("storagetest: unsupported boost_mode %q", q.BoostMode)
	}

	factor := 1.0
	for _, fn := range q.Functions {
		v, err := evaluateFunction(fn, doc)
		if err != nil {
			return false, 0, err
		}
		factor *= v
	}
	return true, base * factor, nil
}

func evaluateFunction(fn query.ScoreFunction, doc map[string]any) (float64, error) {
	switch fn := fn.(type) {
	case query.FieldValueFactor:
		if v, ok := firstNumber(fieldValues(doc, fn.Field)); ok {
			return v, nil
		}
		return fn.Missing, nil

	case query.ScriptScore:
		if fn.Script.Source != query.RecencyScript(time.Time{}).Source {
			return 0, errors.New("storagetest: unsupported score script")
		}
		now, ok := fn.Script.Params["now"].(int64)
		if !ok {
			return 0, errors.New("storagetest: recency script needs an int64 now param")
		}
		var createdAt *int64
		if v, ok := firstNumber(fieldValues(doc, query.CreatedAtField)); ok {
			ts := int64(v)
			createdAt = &ts
		}
		return query.RecencyBoost(createdAt, time.Unix(now, 0)), nil
	}
	return 0, fmt.Errorf("storagetest: unsupported score function %T", fn)
}

func sortMatches(matches []match, sorters []query.Sorter) error {
	if len(sorters) == 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].score > matches[j].score
		})
		return nil
	}

	keys := make([][]float64, len(matches))
	for i := range keys {
		keys[i] = make([]float64, len(sorters))
	}
	for s, sorter := range sorters {
		ss, ok := sorter.(*query.ScriptSort)
		if !ok {
			return fmt.Errorf("storagetest: unsupported sort %T", sorter)
		}
		if ss.Script.Source != query.PriceSort(nil, query.OrderAsc).Script.Source {
			return errors.New("storagetest: unsupported sort script")
		}
		table := rateParams(ss.Script.Params["rates"])
		for i, mt := range matches {
			keys[i][s] = query.ConvertedPrice(documentPrice(mt.doc), table, ss.Order)
		}
	}

	idx := make([]int, len(matches))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		for s, sorter := range sorters {
			if ka[s] == kb[s] {
				continue
			}
			if sorter.(*query.ScriptSort).Order == query.OrderDesc {
				return ka[s] > kb[s]
			}
			return ka[s] < kb[s]
		}
		return false
	})

	sorted := make([]match, len(matches))
	for i, j := range idx {
		sorted[i] = matches[j]
	}
	copy(matches, sorted)
	return nil
}

func rateParams(v any) rates.Table {
	table := rates.Table{}
	switch params := v.(type) {
	case map[string]any:
		for k, rate := range params {
			if s, ok := rate.(string); ok {
				table[types.CurrencyKey(k)] = s
			}
		}
	case map[string]string:
		for k, rate := range params {
			table[types.CurrencyKey(k)] = rate
		}
	}
	return table
}

func documentPrice(doc map[string]any) types.Price {
	var price types.Price
	raw, _ := doc["price"].(map[string]any)
	switch amount := raw["amount"].(type) {
	case string:
		price.Amount = amount
	case float64:
		price.Amount = strconv.FormatFloat(amount, 'f', -1, 64)
	}
	if currency, ok := raw["currency"].(string); ok {
		price.Currency = types.CurrencyKey(currency)
	}
	return price
}

func aggregate(matches []match, aggs map[string]query.Aggregation) (map[string]*float64, error) {
	if len(aggs) == 0 {
		return nil, nil
	}

	out := make(map[string]*float64, len(aggs))
	for name, agg := range aggs {
		metric, ok := agg.(query.MetricAggregation)
		if !ok {
			return nil, fmt.Errorf("storagetest: unsupported aggregation %T", agg)
		}
		if metric.Kind != "min" && metric.Kind != "max" {
			return nil, fmt.Errorf("storagetest: unsupported metric %q", metric.Kind)
		}

		var result *float64
		for _, mt := range matches {
			for _, raw := range fieldValues(mt.doc, metric.Field) {
				v, ok := toNumber(raw)
				if !ok {
					continue
				}
				if result == nil ||
					(metric.Kind == "min" && v < *result) ||
					(metric.Kind == "max" && v > *result) {
					value := v
					result = &value
				}
			}
		}
		out[name] = result
	}
	return out, nil
}

func page(matches []match, from, size int) []match {
	if from >= len(matches) || size <= 0 {
		return nil
	}
	end := from + size
	if end > len(matches) {
		end = len(matches)
	}
	return matches[from:end]
}

// project keeps the requested top-level fields; nil keeps the whole document
func project(doc map[string]any, fields []string) map[string]any {
	if fields == nil {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// fieldValues returns every value stored under a dotted field path
func fieldValues(doc map[string]any, field string) []any {
	if field == query.AllTextField {
		var out []any
		for _, f := range allTextSources {
			out = append(out, fieldValues(doc, f)...)
		}
		return out
	}
	return collect(doc, strings.Split(field, "."))
}

func collect(v any, path []string) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, e := range t {
			out = append(out, collect(e, path)...)
		}
		return out
	case map[string]any:
		if len(path) == 0 {
			return nil
		}
		return collect(t[path[0]], path[1:])
	}
	if len(path) > 0 {
		return nil
	}
	return []any{v}
}

type token struct {
	text string
	pos  int
}

// fieldTokens analyzes every string value of a field, leaving a position gap
// between values
func fieldTokens(doc map[string]any, field string) []token {
	var tokens []token
	pos := 0
	for _, v := range fieldValues(doc, field) {
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, t := range analyze(s) {
			tokens = append(tokens, token{text: t, pos: pos})
			pos++
		}
		pos += positionIncrementGap
	}
	return tokens
}

// analyze lowercases and splits on anything that is not a letter or digit
func analyze(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchScore sums one point per exact term and half a point per fuzzy term
func matchScore(tokens []token, terms []string, fuzziness string) float64 {
	score := 0.0
	for _, term := range terms {
		best := 0.0
		edits := allowedEdits(term, fuzziness)
		for _, t := range tokens {
			if t.text == term {
				best = 1
				break
			}
			if edits > 0 && levenshtein.ComputeDistance(t.text, term) <= edits {
				best = 0.5
			}
		}
		score += best
	}
	return score
}

// allowedEdits implements AUTO fuzziness: 0 edits up to 2 runes, 1 up to 5, else 2
func allowedEdits(term, fuzziness string) int {
	if fuzziness != query.Fuzziness {
		return 0
	}
	switch n := len([]rune(term)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// phraseMatches reports whether terms occur in order with at most slop
// positions between them in total.
func phraseMatches(tokens []token, terms []string, slop int) bool {
	if len(terms) == 0 {
		return false
	}
	for i, start := range tokens {
		if start.text != terms[0] {
			continue
		}
		prev, gaps, next := start.pos, 0, 1
		for _, t := range tokens[i+1:] {
			if next == len(terms) {
				break
			}
			if t.text == terms[next] {
				gaps += t.pos - prev - 1
				prev = t.pos
				next++
			}
		}
		if next == len(terms) && gaps <= slop {
			return true
		}
	}
	return false
}

// termEquals compares a stored value with a term the way a keyword, numeric or
// boolean field would.
func termEquals(stored, want any) bool {
	switch w := want.(type) {
	case bool:
		b, ok := stored.(bool)
		return ok && b == w
	case string:
		if s, ok := stored.(string); ok {
			return s == w
		}
		if n, ok := toNumber(stored); ok {
			if wn, err := strconv.ParseFloat(w, 64); err == nil {
				return n == wn
			}
		}
		return false
	}
	if wn, ok := toNumber(want); ok {
		n, ok := toNumber(stored)
		return ok && n == wn
	}
	return false
}

func inRange(stored, gte, lte any) bool {
	if gte != nil {
		if c, ok := compare(stored, gte); !ok || c < 0 {
			return false
		}
	}
	if lte != nil {
		if c, ok := compare(stored, lte); !ok || c > 0 {
			return false
		}
	}
	return true
}

// compare orders a stored value against a bound. Numeric fields compare
// numerically; a date string bound against a numeric field is converted to unix
// seconds. ok is false when the two cannot be compared.
func compare(stored, bound any) (int, bool) {
	n, numeric := toNumber(stored)
	if b, ok := bound.(string); ok && numeric {
		if ts, ok := parseDate(b); ok {
			return cmpFloat(n, float64(ts)), true
		}
	}
	if bn, ok := toNumber(bound); ok && numeric {
		return cmpFloat(n, bn), true
	}
	s, ok1 := stored.(string)
	b, ok2 := bound.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	if st, ok := parseDate(s); ok {
		if bt, ok := parseDate(b); ok {
			return cmpFloat(float64(st), float64(bt)), true
		}
	}
	return strings.Compare(s, b), true
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseDate(s string) (int64, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// toNumber coerces JSON numbers and numeric strings, as numeric fields do
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstNumber(values []any) (float64, bool) {
	for _, v := range values {
		if n, ok := toNumber(v); ok {
			return n, true
		}
	}
	return 0, false
}

// merge applies a partial document the way the update API does: objects merge,
// everything else replaces.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func roundTrip(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
