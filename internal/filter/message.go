// Package filter narrows message listings on the client side.
package filter

import (
	"path/filepath"

	"github.com/dyluth/swarm/pkg/blackboard"
)

// Criteria defines filtering criteria for messages.
// All filters are ANDed together - a message must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	KindGlob         string // Glob pattern for message kind, empty = no filter
	Sender           string // Exact match on sender, empty = no filter
}

// Matches returns true if the message matches all filter criteria.
func (c *Criteria) Matches(msg *blackboard.Message) bool {
	if c.SinceTimestampMs > 0 && msg.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && msg.CreatedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.KindGlob != "" {
		matched, err := filepath.Match(c.KindGlob, string(msg.Kind))
		if err != nil || !matched {
			return false
		}
	}

	if c.Sender != "" && msg.Sender != c.Sender {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.KindGlob != "" ||
		c.Sender != ""
}

// Apply returns the messages that match, preserving order.
func (c *Criteria) Apply(messages []*blackboard.Message) []*blackboard.Message {
	if !c.HasFilters() {
		return messages
	}
	out := make([]*blackboard.Message, 0, len(messages))
	for _, m := range messages {
		if c.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}
