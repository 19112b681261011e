// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the swarm coordination store.
//
// # Overview
//
// The blackboard is the shared durable state through which intermittently
// running agents coordinate. Nothing is shared in memory between agents; the
// mailbox, knowledge and coordinator packages all read and write here.
//
// # Core Concepts
//
// Agents are participants identified by a stable ID. They are created lazily
// the first time they send, receive, listen or heartbeat, and are never deleted.
//
// Messages are per-recipient deliveries ordered by creation time. Message IDs
// are UUIDv7 so their lexical order matches their creation order.
//
// Tasks move open -> assigned -> complete, and back to open only when the
// coordinator reclaims a stalled assignment.
//
// Knowledge entries, decision records and notes are write-once.
//
// # Consistency
//
// Appends are written with a single MULTI/EXEC (see Client.Atomic). Status
// transitions are compare-and-swap transactions over WATCHed keys
// (see Client.Watch), retried at most MaxTxRetries times.
//
// # Redis Schema
//
// All Redis keys follow the pattern: swarm:{instance_name}:{entity}:{id}
//
//	Agents:        swarm:{instance}:agent:{agent_id}     (hash)
//	Agent index:   swarm:{instance}:agents               (set)
//	Messages:      swarm:{instance}:message:{id}         (hash)
//	Mailboxes:     swarm:{instance}:inbox:{agent_id}     (zset, score = created_at_ms)
//	Tasks:         swarm:{instance}:task:{id}            (hash)
//	Task index:    swarm:{instance}:tasks                (zset, score = created_at_ms)
//	Status index:  swarm:{instance}:tasks:{open|assigned} (set)
//	Dedup index:   swarm:{instance}:task_by_hash:{sha256} (string -> task id)
//	Learnings:     swarm:{instance}:learning:{id}        (hash) + learnings (zset)
//	Decisions:     swarm:{instance}:decision:{id}        (hash) + decisions (zset)
//	Notes:         swarm:{instance}:note:{id}            (hash) + notes:{agent_id} (zset)
//
// Pub/Sub channel: swarm:{instance_name}:broadcast_events
//
// # Errors
//
// Every operation reports failures as *Error with a Kind: validation,
// unknown_recipient, agent_busy, task_unavailable, ownership or storage.
// Match kinds with errors.Is(err, ErrAgentBusy) or KindOf(err).
package blackboard
