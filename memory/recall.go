package memory

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Recall wires Store and the optional Ranker together, implementing the
// shape httpapi.SemanticRecall expects (Recall(ctx, input, chatID, topK)).
// The httpapi package is not imported here to keep memory independent of
// the HTTP surface; cmd/clawless adapts the two with a one-line wrapper.
type Recall struct {
	store  *Store
	ranker *Ranker
	log    *slog.Logger
}

// NewRecall constructs a Recall over store, with ranking enabled if
// apiKey is non-empty.
func NewRecall(store *Store, apiKey, model string, log *slog.Logger) *Recall {
	return &Recall{store: store, ranker: NewRanker(apiKey, model), log: log.With("component", "memory")}
}

// NewRecallFromEnv is a convenience constructor reading the Anthropic API
// key from ANTHROPIC_API_KEY, matching m4xw311-compell's own
// NewAnthropicLLMClient convention.
func NewRecallFromEnv(store *Store, model string, log *slog.Logger) *Recall {
	return NewRecall(store, apiKeyFromEnv(), model, log)
}

// Recall finds the topK entries most relevant to input, optionally scoped
// to chatID. It fetches 2*topK FTS5 candidates, then re-ranks them with
// the Ranker if one is configured.
func (r *Recall) Recall(ctx context.Context, input, chatID string, topK int) ([]Entry, error) {
	if topK <= 0 {
		topK = 5
	}
	candidates, err := r.store.Search(ctx, input, chatID, topK*2)
	if err != nil {
		return nil, err
	}
	return r.ranker.Rerank(ctx, input, candidates, topK), nil
}

// IndexNotesFile re-indexes notesPath line-by-line into the store: each
// non-blank line becomes one recall entry, keyed by a content hash so
// re-running on an unchanged file is a no-op at the storage layer (the
// upsert just replaces the row with itself). This is the "simpler of the
// two" population strategy SPEC_FULL.md §12.4 calls for, run once at
// startup; later edits to the file are not picked up until the next start.
func (r *Recall) IndexNotesFile(ctx context.Context, notesPath string) error {
	f, err := os.Open(notesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("clawless/memory: open notes file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	indexed := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := lineID(notesPath, lineNum, line)
		if err := r.store.Upsert(ctx, id, "", line); err != nil {
			return fmt.Errorf("clawless/memory: index line %d: %w", lineNum, err)
		}
		indexed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("clawless/memory: scan notes file: %w", err)
	}
	r.log.Info("indexed memory notes file", "path", notesPath, "lines", indexed)
	return nil
}

func lineID(path string, lineNum int, text string) string {
	h := sha1.New()
	h.Write([]byte(path))
	h.Write([]byte(strconv.Itoa(lineNum)))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
