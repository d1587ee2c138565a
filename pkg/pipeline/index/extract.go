package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/civicsync/civicsync/pkg/pipeline/llm"
)

// CurrentPromptHash identifies the active summarization prompt
// version. Summaries are stamped with the hash of the prompt that
// produced them (domain.Summary.PromptHash); bumping this constant
// after a prompt rewrite marks every existing summary stale so
// pkg/cleanup deletes them; recall skips a page that has no summary
// until a new one is stored.
const CurrentPromptHash = "v1"

// Extractor runs one of the three strategies over a website's recalled
// summaries. MaxSingular and MaxNarrative cap how many summaries the
// Singular and Narrative strategies receive; Collection uses every
// recalled summary (spec.md §4.8 steps 2-4).
type Extractor struct {
	Client       llm.Client
	MaxSingular  int
	MaxNarrative int
}

func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{Client: client, MaxSingular: 10, MaxNarrative: 20}
}

// Extract classifies the query and dispatches the caller's recalled
// summaries to the matching strategy.
func (e *Extractor) Extract(ctx context.Context, recalled []RecalledSummary, query string) (Extraction, error) {
	strategy := ClassifyQuery(ctx, e.Client, query)
	switch strategy {
	case StrategySingular:
		return e.extractSingular(ctx, truncate(recalled, e.MaxSingular), query)
	case StrategyNarrative:
		return e.extractNarrative(ctx, truncate(recalled, e.MaxNarrative), query)
	default:
		return e.extractCollection(ctx, recalled, query)
	}
}

func truncate(rs []RecalledSummary, n int) []RecalledSummary {
	if len(rs) > n {
		return rs[:n]
	}
	return rs
}

type bucketPlan struct {
	Buckets []struct {
		Label string   `json:"label"`
		URLs  []string `json:"urls"`
	} `json:"buckets"`
}

// extractCollection partitions recalled summaries into LLM-proposed
// buckets, then extracts each bucket independently and in parallel.
// A bucket whose extraction call fails is logged and skipped rather
// than failing the whole query (spec.md §4.8 step 2).
func (e *Extractor) extractCollection(ctx context.Context, recalled []RecalledSummary, query string) (Extraction, error) {
	if len(recalled) == 0 {
		return Extraction{Strategy: StrategyCollection}, nil
	}

	byURL := make(map[string]RecalledSummary, len(recalled))
	var listing strings.Builder
	for _, r := range recalled {
		byURL[r.Page.URL] = r
		fmt.Fprintf(&listing, "- %s: %s\n", r.Page.URL, r.Summary.Summary)
	}

	plan, err := e.partition(ctx, query, listing.String())
	if err != nil {
		return Extraction{}, fmt.Errorf("extract collection: partition: %w", err)
	}
	if len(plan.Buckets) == 0 {
		plan.Buckets = []struct {
			Label string   `json:"label"`
			URLs  []string `json:"urls"`
		}{{Label: "all", URLs: keys(byURL)}}
	}

	type bucketResult struct {
		bucket Bucket
		ok     bool
	}
	results := make([]bucketResult, len(plan.Buckets))

	var wg sync.WaitGroup
	for i, bp := range plan.Buckets {
		wg.Add(1)
		go func(i int, label string, urls []string) {
			defer wg.Done()
			var content strings.Builder
			for _, u := range urls {
				if r, ok := byURL[u]; ok {
					fmt.Fprintf(&content, "- %s: %s\n", r.Page.URL, r.Summary.Summary)
				}
			}
			resp, err := e.Client.Complete(ctx, llm.CompletionRequest{
				SystemPrompt: "Summarize the following sources into a concise answer for the bucket topic given.",
				Messages: []llm.Message{
					{Role: "user", Content: fmt.Sprintf("Topic: %s\nQuery: %s\nSources:\n%s", label, query, content.String())},
				},
			})
			if err != nil {
				slog.Warn("collection bucket extraction failed, skipping", "label", label, "error", err)
				results[i] = bucketResult{ok: false}
				return
			}
			results[i] = bucketResult{bucket: Bucket{Label: label, URLs: urls, Summary: resp.Text}, ok: true}
		}(i, bp.Label, bp.URLs)
	}
	wg.Wait()

	buckets := make([]Bucket, 0, len(results))
	for _, r := range results {
		if r.ok {
			buckets = append(buckets, r.bucket)
		}
	}

	return Extraction{Strategy: StrategyCollection, Buckets: buckets}, nil
}

func (e *Extractor) partition(ctx context.Context, query, listing string) (bucketPlan, error) {
	resp, err := e.Client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: `Group the following sources into topical buckets relevant to the query. ` +
			`Respond with JSON only: {"buckets":[{"label":"...","urls":["..."]}]}`,
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf("Query: %s\nSources:\n%s", query, listing)}},
	})
	if err != nil {
		return bucketPlan{}, err
	}
	var plan bucketPlan
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &plan); err != nil {
		return bucketPlan{}, fmt.Errorf("parse bucket plan: %w", err)
	}
	return plan, nil
}

// extractSingular asks the LLM for a single answer drawn from the
// top-ranked recalled summaries (spec.md §4.8 step 3).
func (e *Extractor) extractSingular(ctx context.Context, recalled []RecalledSummary, query string) (Extraction, error) {
	var sources strings.Builder
	for _, r := range recalled {
		fmt.Fprintf(&sources, "- %s: %s\n", r.Page.URL, r.Summary.Summary)
	}
	resp, err := e.Client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Answer the query with a single concise fact drawn only from the sources given. " +
			"If the sources don't contain the answer, say so plainly.",
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf("Query: %s\nSources:\n%s", query, sources.String())}},
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("extract singular: %w", err)
	}
	gaps := detectGaps(resp.Text, query)
	return Extraction{Strategy: StrategySingular, Content: resp.Text, Gaps: gaps}, nil
}

// extractNarrative asks the LLM to summarize the top-ranked recalled
// summaries into a narrative answer (spec.md §4.8 step 4).
func (e *Extractor) extractNarrative(ctx context.Context, recalled []RecalledSummary, query string) (Extraction, error) {
	var sources strings.Builder
	for _, r := range recalled {
		fmt.Fprintf(&sources, "- %s: %s\n", r.Page.URL, r.Summary.Summary)
	}
	resp, err := e.Client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Write a short narrative answer to the query, synthesizing the sources given.",
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf("Query: %s\nSources:\n%s", query, sources.String())}},
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("extract narrative: %w", err)
	}
	gaps := detectGaps(resp.Text, query)
	return Extraction{Strategy: StrategyNarrative, Content: resp.Text, Gaps: gaps}, nil
}

// detectGaps flags an extraction as gap-worthy when the model itself
// signaled it couldn't answer from the sources, rather than running a
// second LLM call just to ask "was anything missing".
func detectGaps(content, query string) []GapQuery {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "don't contain") || strings.Contains(lower, "not available") ||
		strings.Contains(lower, "couldn't find") || strings.Contains(lower, "no information") {
		return []GapQuery{{Field: "answer", Query: query}}
	}
	return nil
}

func keys(m map[string]RecalledSummary) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// extractJSON strips a ```json fenced block if the model wrapped its
// response in one; otherwise returns the text unchanged.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(t, "```")
	}
	return strings.TrimSpace(t)
}
