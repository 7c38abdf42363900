package memory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Ranker re-scores FTS5 candidates for relevance to a query using the
// Anthropic API. It is optional: without an API key, callers fall back to
// FTS5 rank order unchanged.
//
// Grounded on m4xw311-compell/llm/anthropic.go's direct use of
// github.com/anthropics/anthropic-sdk-go (anthropic.NewClient +
// client.Messages.New) — the one example in the retrieval pack that calls
// the real SDK rather than hand-rolling the HTTP request the way the
// teacher's own llm/anthropic.go does.
type Ranker struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewRanker constructs a Ranker from an API key. An empty key returns a
// nil *Ranker: the caller should treat that as "no ranker configured" and
// skip re-ranking rather than treating it as an error.
func NewRanker(apiKey, model string) *Ranker {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Ranker{client: &client, model: anthropic.Model(model)}
}

// Rerank asks the model to order candidates by relevance to query and
// returns the top n entries from candidates, most relevant first. On any API
// error it returns the original candidate order unchanged (degraded, not
// fatal, per spec.md §12.4).
func (r *Ranker) Rerank(ctx context.Context, query string, candidates []Entry, n int) []Entry {
	if r == nil || len(candidates) == 0 {
		return truncate(candidates, n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c.Text)
	}
	fmt.Fprintf(&b, "\nReply with only the candidate indices in order of decreasing relevance to the query, comma-separated, most relevant first, at most %d indices.", n)

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return truncate(candidates, n)
	}

	order := parseIndexList(responseText(resp), len(candidates))
	if len(order) == 0 {
		return truncate(candidates, n)
	}

	out := make([]Entry, 0, n)
	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, candidates[idx])
		if len(out) == n {
			break
		}
	}
	return out
}

func responseText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseIndexList parses a comma-separated list of candidate indices,
// discarding anything out of [0, count).
func parseIndexList(s string, count int) []int {
	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.Trim(tok, "[]")
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n >= count {
			continue
		}
		out = append(out, n)
	}
	return out
}

func truncate(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// apiKeyFromEnv reads ANTHROPIC_API_KEY, mirroring
// m4xw311-compell/llm/anthropic.go's NewAnthropicLLMClient convention.
func apiKeyFromEnv() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}
