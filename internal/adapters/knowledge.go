package adapters

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// KnowledgeSearcher is implemented by client.KnowledgeClient.
type KnowledgeSearcher interface {
	Query(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error)
}

// KnowledgeOptions bound what the knowledge adapter returns.
type KnowledgeOptions struct {
	TopK             int
	MinRelevance     float64
	MaxResponseRunes int
	TTL              time.Duration
}

// Knowledge answers free-text questions from retrieved document snippets.
type Knowledge struct {
	searcher KnowledgeSearcher
	cache    *cache.Layer
	opts     KnowledgeOptions
}

func NewKnowledge(searcher KnowledgeSearcher, layer *cache.Layer, opts KnowledgeOptions) *Knowledge {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.MaxResponseRunes <= 0 {
		opts.MaxResponseRunes = 1500
	}
	return &Knowledge{searcher: searcher, cache: layer, opts: opts}
}

func (a *Knowledge) ID() models.CapabilityID { return models.CapabilityKnowledge }

// Invoke fails with InsufficientData rather than return a snippet below the
// relevance threshold.
func (a *Knowledge) Invoke(ctx context.Context, req models.CapabilityRequest) models.Result {
	query := strings.TrimSpace(req.QueryText)
	if query == "" {
		return models.Failed(models.KindInsufficientData, "knowledge retrieval requires query text")
	}
	key := cache.NewKey(models.CapabilityKnowledge, cache.KeyParams{Extra: map[string]string{
		"q":     cache.NormalizeText(query),
		"top_k": strconv.Itoa(a.opts.TopK),
	}})
	// Retrieval answers are never served past their TTL.
	snippets, lookup, err := cache.GetOrComputeFresh(ctx, a.cache, key, a.opts.TTL, func(ctx context.Context) ([]models.KnowledgeSnippet, error) {
		return a.searcher.Query(ctx, query, a.opts.TopK)
	})
	if err != nil {
		return failedFromError(err)
	}

	relevant := make([]models.KnowledgeSnippet, 0, len(snippets))
	for _, s := range snippets {
		if s.Score >= a.opts.MinRelevance && strings.TrimSpace(s.Text) != "" {
			relevant = append(relevant, s)
		}
	}
	if len(relevant) == 0 {
		return models.Failed(models.KindInsufficientData, "no snippet cleared the relevance threshold")
	}
	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].Score > relevant[j].Score })

	texts := make([]string, len(relevant))
	for i, s := range relevant {
		texts[i] = strings.TrimSpace(s.Text)
	}
	answer, truncated := truncateRunes(strings.Join(texts, "\n\n"), a.opts.MaxResponseRunes)

	return resultFromLookup(models.KnowledgeAnswer{
		Query:     query,
		Answer:    answer,
		Sources:   sourceNames(relevant),
		Snippets:  relevant,
		Truncated: truncated,
	}, lookup)
}

const ellipsis = "..."

// truncateRunes cuts s to at most max runes, ending in an ellipsis when cut.
func truncateRunes(s string, max int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	keep := max - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRight(string(runes[:keep]), " \n") + ellipsis, true
}

// sourceNames returns de-duplicated base names in first-seen order.
func sourceNames(snippets []models.KnowledgeSnippet) []string {
	seen := make(map[string]bool, len(snippets))
	out := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if s.Source == "" {
			continue
		}
		name := path.Base(strings.ReplaceAll(s.Source, "\\", "/"))
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
