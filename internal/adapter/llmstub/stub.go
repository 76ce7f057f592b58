// Package llmstub is a deterministic, offline stand-in for the hosted
// language model. It classifies queries with keyword rules and embeds text as
// hashed bags of word stems, so relevance ranking is stable and meaningful
// without network access.
package llmstub

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

// Dimensions of the stub embedding space.
const Dimensions = 512

// Model implements domain.LanguageModel and domain.Embedder.
type Model struct {
	// Places are recognised verbatim (case-insensitive) before the
	// "in/near/for <Capitalised Words>" heuristic is tried.
	Places []string
	// Responses overrides Classify output per purpose.
	Responses map[string]string
	// Errors fails Classify per purpose.
	Errors map[string]error
	// Answer overrides the generated text.
	Answer string
	// GenerateFailures fails the first n Generate calls.
	GenerateFailures int
	GenerateErr      error
	// EmbedErr fails every Embed call.
	EmbedErr error

	mu       sync.Mutex
	calls    map[string]int
	prompts  []domain.GenerateRequest
	embedded int
}

// New returns a stub that knows the given place names.
func New(places ...string) *Model {
	return &Model{Places: places}
}

// Calls returns how many times a purpose ("generate" and "embed" included) was invoked.
func (m *Model) Calls(purpose string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[purpose]
}

// EmbeddedTexts returns the total number of texts embedded.
func (m *Model) EmbeddedTexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedded
}

// LastGenerate returns the most recent generation request.
func (m *Model) LastGenerate() (domain.GenerateRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return domain.GenerateRequest{}, false
	}
	return m.prompts[len(m.prompts)-1], true
}

func (m *Model) record(purpose string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[purpose]++
	return m.calls[purpose]
}

// Classify answers the intent, locations, and forecast-window prompts. The
// query is taken from the prompt's "Query:" line when present.
func (m *Model) Classify(ctx context.Context, req domain.ClassifyRequest) (json.RawMessage, error) {
	m.record(req.Purpose)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errors[req.Purpose]; err != nil {
		return nil, err
	}
	if resp, ok := m.Responses[req.Purpose]; ok {
		return json.RawMessage(resp), nil
	}

	query := QueryFromPrompt(req.Prompt)
	var v any
	switch req.Purpose {
	case domain.PurposeIntent:
		v = classifyIntent(query)
	case domain.PurposeLocations:
		v = map[string]any{"locations": m.extractPlaces(query)}
	case domain.PurposeForecastWindow:
		v = forecastWindow(query)
	default:
		return nil, fmt.Errorf("llmstub: unknown purpose %q", req.Purpose)
	}
	return json.Marshal(v)
}

// Generate returns a short deterministic answer.
func (m *Model) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	n := m.record("generate")
	m.mu.Lock()
	m.prompts = append(m.prompts, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n <= m.GenerateFailures {
		if m.GenerateErr != nil {
			return "", m.GenerateErr
		}
		return "", fmt.Errorf("llmstub: generation failure %d", n)
	}
	if m.Answer != "" {
		return m.Answer, nil
	}
	return "Based on the available data for " + firstLine(QueryFromPrompt(req.Prompt)) +
		": see the retrieved county, precipitation, flood event, and vulnerability records above.", nil
}

// Embed hashes word stems into a fixed-size count vector.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.record("embed")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	m.mu.Lock()
	m.embedded += len(texts)
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true, "that": true,
	"this": true, "what": true, "is": true, "in": true, "of": true, "to": true,
	"a": true, "an": true, "or": true, "on": true, "by": true, "be": true,
	"as": true, "at": true, "it": true, "its": true, "from": true, "than": true,
	"query": true, "context": true, "such": true, "how": true, "who": true,
}

// Vector is the stub embedding of text.
func Vector(text string) []float32 {
	vec := make([]float32, Dimensions)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(stem(w)))
		vec[h.Sum32()%Dimensions]++
	}
	return vec
}

// stem truncates words to a shared root so "vulnerable" and "vulnerability"
// land in the same bucket.
func stem(w string) string {
	if len(w) > 6 {
		return w[:6]
	}
	return strings.TrimSuffix(w, "s")
}

// QueryFromPrompt extracts the text after a leading "Query:" marker.
func QueryFromPrompt(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Query:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(prompt)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

var (
	sviWords      = []string{"why", "vulnerab", "poverty", "poor", "income", "demograph", "elderly", "disab", "vehicle", "housing", "social", "svi", "equity", "mobile home"}
	forecastWords = []string{"forecast", "next", "upcoming", "tomorrow", "tonight", "soon", "expected"}
	historyWords  = []string{"history", "historical", "past", "previous", "happened", "events", "recorded"}
	precipWords   = []string{"rainfall", "precipitation", "monthly", "average rain", "wettest", "driest"}
	countyWords   = []string{"county", "area", "where"}

	maxEventsRe = regexp.MustCompile(`(?:top|last|nearest|closest)\s+(\d+)|(\d+)\s+(?:events|floods)`)
	distanceRe  = regexp.MustCompile(`within\s+(\d+(?:\.\d+)?)\s*(?:mi|miles)`)
	hoursRe     = regexp.MustCompile(`(\d+)\s*(?:-\s*)?(?:hours?|hrs?|h\b)`)
	daysRe      = regexp.MustCompile(`(\d+)\s*days?`)
	placeRe     = regexp.MustCompile(`\b(?:in|near|for|around|at|of)\s+((?:[A-Z][A-Za-z.'-]*)(?:,?\s+[A-Z][A-Za-z.'-]*)*)`)
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func classifyIntent(query string) map[string]any {
	q := strings.ToLower(query)
	intent := map[string]any{
		"needs_svi_data":               containsAny(q, sviWords),
		"needs_precipitation_forecast": containsAny(q, forecastWords) && !strings.Contains(q, "past"),
		"needs_flood_history":          containsAny(q, historyWords),
		"needs_precipitation_history":  containsAny(q, precipWords) && !containsAny(q, forecastWords),
		"needs_county_info":            true,
		"svi_relevance_threshold":      0.3,
	}
	if strings.Contains(q, "rain") && !containsAny(q, forecastWords) {
		intent["needs_precipitation_history"] = true
	}
	if !intent["needs_svi_data"].(bool) && !intent["needs_precipitation_forecast"].(bool) &&
		!intent["needs_flood_history"].(bool) && !intent["needs_precipitation_history"].(bool) {
		// general "flood risk" questions get everything
		for _, k := range []string{"needs_svi_data", "needs_precipitation_forecast", "needs_flood_history", "needs_precipitation_history"} {
			intent[k] = true
		}
	}
	if containsAny(q, countyWords) || containsAny(q, historyWords) {
		intent["needs_county_info"] = true
	}

	filters := map[string]any{"max_events": 10, "max_distance_miles": nil, "recent_only": false}
	if m := maxEventsRe.FindStringSubmatch(q); m != nil {
		n := m[1]
		if n == "" {
			n = m[2]
		}
		v, _ := strconv.Atoi(n)
		filters["max_events"] = v
	}
	if m := distanceRe.FindStringSubmatch(q); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		filters["max_distance_miles"] = v
	}
	if strings.Contains(q, "recent") || strings.Contains(q, "last decade") || strings.Contains(q, "lately") {
		filters["recent_only"] = true
	}
	intent["flood_event_filters"] = filters
	return intent
}

func forecastWindow(query string) map[string]any {
	q := strings.ToLower(query)
	if !containsAny(q, forecastWords) {
		return map[string]any{"requested": false, "hours": nil}
	}
	if m := hoursRe.FindStringSubmatch(q); m != nil {
		v, _ := strconv.Atoi(m[1])
		return map[string]any{"requested": true, "hours": v}
	}
	if m := daysRe.FindStringSubmatch(q); m != nil {
		v, _ := strconv.Atoi(m[1])
		return map[string]any{"requested": true, "hours": v * 24}
	}
	if strings.Contains(q, "tomorrow") {
		return map[string]any{"requested": true, "hours": 24}
	}
	return map[string]any{"requested": true, "hours": nil}
}

func (m *Model) extractPlaces(query string) []string {
	lower := strings.ToLower(query)
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, p := range m.Places {
		if i := strings.Index(lower, strings.ToLower(p)); i >= 0 {
			hits = append(hits, hit{i, p})
		}
	}
	if len(hits) > 0 {
		// order of appearance, longest match first where places overlap
		slices.SortStableFunc(hits, func(a, b hit) int {
			if a.pos != b.pos {
				return a.pos - b.pos
			}
			return len(b.name) - len(a.name)
		})
		names := []string{}
		end := -1
		for _, h := range hits {
			if h.pos < end {
				continue
			}
			names = append(names, h.name)
			end = h.pos + len(h.name)
		}
		return names
	}

	names := []string{}
	for _, match := range placeRe.FindAllStringSubmatch(query, -1) {
		name := strings.TrimRight(match[1], ".,?! ")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Norm is the Euclidean length of v; exported for tests of embedding sanity.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
