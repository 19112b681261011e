package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/dyluth/swarm/pkg/blackboard"
)

// SearchOptions narrows a search.
type SearchOptions struct {
	Category blackboard.Category // Empty means every category
	Limit    int                 // 0 means no limit
}

// Match is a search hit with its relevance score.
type Match struct {
	Entry *blackboard.KnowledgeEntry `json:"entry"`
	Score int                        `json:"score"`
}

// Search finds entries whose title, body or tags contain query, ignoring case.
//
// The score is the number of non-overlapping occurrences of the query summed
// over title, body and every tag. Results are ordered by score, then newest
// first, then by ID descending, so equal inputs always give equal output.
// A blank query matches nothing.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Match, error) {
	if opts.Limit < 0 {
		return nil, blackboard.Validation("search", "limit must be >= 0, got %d", opts.Limit)
	}
	if opts.Category != "" {
		if err := opts.Category.Validate(); err != nil {
			return nil, blackboard.Validation("search", "%v", err)
		}
	}

	if strings.TrimSpace(query) == "" {
		return []Match{}, nil
	}
	needle := strings.ToLower(query)

	entries, err := s.client.ListKnowledgeEntries(ctx)
	if err != nil {
		return nil, blackboard.Storage("search", err)
	}

	matches := make([]Match, 0)
	for _, e := range entries {
		if opts.Category != "" && e.Category != opts.Category {
			continue
		}
		if score := relevance(e, needle); score > 0 {
			matches = append(matches, Match{Entry: e, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.CreatedAtMs != b.Entry.CreatedAtMs {
			return a.Entry.CreatedAtMs > b.Entry.CreatedAtMs
		}
		return a.Entry.ID > b.Entry.ID
	})

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// relevance counts occurrences of needle (already lowercased) in the entry.
func relevance(e *blackboard.KnowledgeEntry, needle string) int {
	score := strings.Count(strings.ToLower(e.Title), needle) +
		strings.Count(strings.ToLower(e.Body), needle)
	for _, tag := range e.Tags {
		score += strings.Count(tag, needle)
	}
	return score
}
