package index

import (
	"context"
	"fmt"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// RecalledSummary pairs a Page with its stored Summary so downstream
// extraction strategies never need to re-join the two.
type RecalledSummary struct {
	Page    domain.Page
	Summary domain.Summary
}

// RankedRecall is ranked_recall (spec.md §4.8): if the website has at
// most maxSummaries pages, every one of their summaries is returned
// untouched — no ranking needed. Past that cap it defers to the
// store's similarity search (native pgvector or SQLite's in-process
// cosine fallback) against queryVector, so ranking logic lives in one
// place rather than being reimplemented here.
//
// queryVector is pre-computed by the caller; this package performs no
// embedding calls itself (spec.md §4.8 "Inputs: ... pre-computed query
// embedding").
func RankedRecall(
	ctx context.Context,
	st store.Store,
	websiteID string,
	queryVector []float32,
	maxSummaries int,
) ([]RecalledSummary, error) {
	pages, err := st.ListPages(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("ranked recall: list pages: %w", err)
	}

	if len(pages) <= maxSummaries {
		return summariesFor(ctx, st, pages)
	}

	if queryVector == nil {
		// No semantic backend to rank by; fall back to the first
		// maxSummaries pages rather than failing the whole recall.
		return summariesFor(ctx, st, pages[:maxSummaries])
	}

	filter := &store.QueryFilter{WebsiteID: websiteID}
	scored, err := st.SearchSimilar(ctx, queryVector, maxSummaries, filter)
	if err != nil {
		return nil, fmt.Errorf("ranked recall: search similar: %w", err)
	}
	ranked := make([]domain.Page, 0, len(scored))
	for _, s := range scored {
		ranked = append(ranked, s.Page)
	}
	return summariesFor(ctx, st, ranked)
}

func summariesFor(ctx context.Context, st store.Store, pages []domain.Page) ([]RecalledSummary, error) {
	out := make([]RecalledSummary, 0, len(pages))
	for _, p := range pages {
		sum, err := st.GetSummary(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("ranked recall: get summary for page %s: %w", p.ID, err)
		}
		if sum == nil {
			continue
		}
		out = append(out, RecalledSummary{Page: p, Summary: *sum})
	}
	return out, nil
}
