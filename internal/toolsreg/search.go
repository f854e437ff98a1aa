package toolsreg

import (
	"math"
	"sort"
	"strings"
)

// SearchResult is a scored tool match.
type SearchResult struct {
	Name  string
	Score float64
}

// Search ranks registered tools against query by weighted keyword match
// against name (exact > token > substring) and description.
func (r *Registry) Search(query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]SearchResult, 0, len(r.tools))
	for name, e := range r.tools {
		score := scoreTool(q, qTokens, strings.ToLower(name), strings.ToLower(e.tool.Description()))
		if score > 0 {
			results = append(results, SearchResult{Name: name, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
	return results
}

func scoreTool(query string, queryTokens []string, name, description string) float64 {
	var score float64

	switch {
	case name == query:
		score = 1.0
	case tokenMatch(name, queryTokens):
		score = 0.8
	case strings.Contains(name, query):
		score = 0.6
	}

	descScore := 0.0
	hits := 0
	for _, tok := range queryTokens {
		if strings.Contains(description, tok) {
			hits++
		}
	}
	if len(queryTokens) > 0 {
		descScore = 0.4 * float64(hits) / float64(len(queryTokens))
	}

	// Normalize by the largest attainable sum (1.0 name + 0.4 description)
	// so the score stays in [0,1] and an exact name match still outranks a
	// token match with the same description hits.
	total := (score + descScore) / 1.4
	return math.Round(total*100) / 100
}

func tokenMatch(name string, queryTokens []string) bool {
	nameTokens := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	set := make(map[string]struct{}, len(nameTokens))
	for _, t := range nameTokens {
		set[t] = struct{}{}
	}
	for _, qt := range queryTokens {
		if _, ok := set[qt]; ok {
			return true
		}
	}
	return false
}
