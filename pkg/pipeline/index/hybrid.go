package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/civicsync/civicsync/pkg/store"
)

// rrfK is the standard RRF constant (spec.md §4.8.1; the RRF paper's
// default), used when HybridSearch is called with k <= 0.
// config.IndexConfig.RRFK is not passed to HybridSearch by any caller.
const rrfK = 60.0

type rrfAccum struct {
	page  store.ScoredPage
	score float64
}

// HybridSearch fuses semantic and keyword candidates by Reciprocal
// Rank Fusion. Ranks are 1-indexed (SPEC_FULL §4.8 rank convention
// note): the first candidate in either list scores weight/(k+1),
// matching original_source's `k + rank + 1.0` where `rank` is a
// 0-indexed loop counter.
//
// semanticWeight is clamped to [0,1]; keyword weight is its
// complement. If queryVector is nil, semantic search is skipped
// entirely and results fall back to keyword-only, with a warning —
// spec.md §4.8.1's "no semantic backend available" case.
func HybridSearch(
	ctx context.Context,
	st store.Store,
	query string,
	queryVector []float32,
	limit int,
	filter *store.QueryFilter,
	semanticWeight float64,
	k float64,
) ([]store.ScoredPage, error) {
	if k <= 0 {
		k = rrfK
	}
	semanticWeight = clamp01(semanticWeight)
	keywordWeight := 1 - semanticWeight

	combined := make(map[string]*rrfAccum)

	if queryVector != nil {
		semanticResults, err := st.SearchSimilar(ctx, queryVector, limit*2, filter)
		if err != nil {
			return nil, fmt.Errorf("hybrid search: semantic leg: %w", err)
		}
		for rank, p := range semanticResults {
			addRRF(combined, p, semanticWeight/(k+float64(rank)+1.0))
		}
	} else {
		slog.Warn("hybrid search running keyword-only, no semantic backend available", "query", query)
		keywordWeight = 1
	}

	keywordResults, err := st.SearchKeyword(ctx, query, limit*2, filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: keyword leg: %w", err)
	}
	for rank, p := range keywordResults {
		addRRF(combined, p, keywordWeight/(k+float64(rank)+1.0))
	}

	results := make([]store.ScoredPage, 0, len(combined))
	for _, a := range combined {
		results = append(results, store.ScoredPage{Page: a.page.Page, Score: a.score})
	}
	// combined is a map, so iteration order above is randomized; break
	// ties on the page's natural key rather than relying on insertion
	// order, matching SPEC_FULL §4.8's "ties broken stably".
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Page.WebsiteID+"|"+results[i].Page.URL < results[j].Page.WebsiteID+"|"+results[j].Page.URL
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func addRRF(combined map[string]*rrfAccum, p store.ScoredPage, rrfScore float64) {
	key := p.Page.WebsiteID + "|" + p.Page.URL
	if existing, ok := combined[key]; ok {
		existing.score += rrfScore
		return
	}
	combined[key] = &rrfAccum{page: p, score: rrfScore}
}

func clamp01(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
