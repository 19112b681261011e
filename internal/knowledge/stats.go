package knowledge

import (
	"context"

	"github.com/dyluth/swarm/pkg/blackboard"
)

// Stats summarizes the knowledge base. It is recomputed on every call.
type Stats struct {
	Learnings           int                         `json:"learnings"`
	Decisions           int                         `json:"decisions"`
	SuccessfulDecisions int                         `json:"successful_decisions"`
	ByCategory          map[blackboard.Category]int `json:"by_category"`
	ByAuthor            map[string]int              `json:"by_author"` // Learnings plus decisions
}

// Stats aggregates counts by category and by author.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	entries, err := s.client.ListKnowledgeEntries(ctx)
	if err != nil {
		return nil, blackboard.Storage("stats", err)
	}
	records, err := s.client.ListDecisionRecords(ctx)
	if err != nil {
		return nil, blackboard.Storage("stats", err)
	}

	stats := &Stats{
		Learnings:  len(entries),
		Decisions:  len(records),
		ByCategory: make(map[blackboard.Category]int),
		ByAuthor:   make(map[string]int),
	}
	for _, e := range entries {
		stats.ByCategory[e.Category]++
		stats.ByAuthor[e.Author]++
	}
	for _, d := range records {
		stats.ByAuthor[d.Author]++
		if d.Success {
			stats.SuccessfulDecisions++
		}
	}
	return stats, nil
}
