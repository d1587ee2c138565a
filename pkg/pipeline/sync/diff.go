package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/civicsync/civicsync/pkg/pipeline/llm"
)

// diffOperation mirrors SyncOperation from the Rust original: a flat
// struct (not a tagged enum) so every field maps directly onto the
// LLM's structured-output JSON regardless of which operation kind it
// picked (spec.md §4.10 step 3).
type diffOperation struct {
	Operation         string   `json:"operation"`
	FreshID           *string  `json:"fresh_id"`
	ExistingID        *string  `json:"existing_id"`
	CanonicalID       *string  `json:"canonical_id"`
	DuplicateIDs      []string `json:"duplicate_ids"`
	MergedTitle       *string  `json:"merged_title"`
	MergedDescription *string  `json:"merged_description"`
	Reason            *string  `json:"reason"`
}

type diffResponse struct {
	Operations []diffOperation `json:"operations"`
	Summary    string          `json:"summary"`
}

const diffSystemPrompt = `You are synchronizing freshly extracted civic entities with existing database entities.

Compare the fresh entities (just extracted from the website) with existing entities (in the database) and decide operations:

1. INSERT: fresh entity is new, doesn't match any existing entity.
2. UPDATE: fresh entity matches an existing entity — refresh its content.
3. DELETE: existing entity has no match in the fresh extraction — it no longer exists on the website. Be conservative; only delete if certain.
4. MERGE: multiple existing entities are duplicates of each other — consolidate into one canonical with combined content.

Every fresh entity must appear in exactly one insert or update operation. Never skip a fresh entity.
Respond with JSON only: {"operations":[{"operation":"insert|update|delete|merge","fresh_id":"fresh_1","existing_id":null,"canonical_id":null,"duplicate_ids":null,"merged_title":null,"merged_description":null,"reason":null}],"summary":"..."}`

// runDiff calls the LLM once with both sets and parses its structured
// decision. Also tolerates a bare operations array in place of the
// {operations, summary} envelope (spec.md §4.10 step 2).
func runDiff(ctx context.Context, client llm.Client, fresh []FreshEntity, existing []ExistingEntity) (diffResponse, error) {
	prompt, err := buildDiffPrompt(fresh, existing)
	if err != nil {
		return diffResponse{}, err
	}
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: diffSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return diffResponse{}, fmt.Errorf("sync diff: llm call: %w", err)
	}

	text := extractJSONText(resp.Text)

	var full diffResponse
	if err := json.Unmarshal([]byte(text), &full); err == nil && (len(full.Operations) > 0 || full.Summary != "") {
		return full, nil
	}

	var bare []diffOperation
	if err := json.Unmarshal([]byte(text), &bare); err == nil {
		return diffResponse{Operations: bare}, nil
	}

	return diffResponse{}, fmt.Errorf("sync diff: could not parse LLM response as operations")
}

func buildDiffPrompt(fresh []FreshEntity, existing []ExistingEntity) (string, error) {
	freshJSON, err := json.MarshalIndent(fresh, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sync diff: marshal fresh: %w", err)
	}
	existingJSON, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sync diff: marshal existing: %w", err)
	}
	return fmt.Sprintf("## Fresh entities\n\n%s\n\n## Existing entities\n\n%s", freshJSON, existingJSON), nil
}

func extractJSONText(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(t, "```")
	}
	return strings.TrimSpace(t)
}
