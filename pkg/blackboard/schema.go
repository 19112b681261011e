package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several swarm instances can share one Redis server.
//
// Key pattern: swarm:{instance_name}:{entity}:{id}
// Channel pattern: swarm:{instance_name}:{event_type}_events

// AgentKey returns the Redis key for an agent hash.
// Pattern: swarm:{instance_name}:agent:{agent_id}
func AgentKey(instanceName, agentID string) string {
	return fmt.Sprintf("swarm:%s:agent:%s", instanceName, agentID)
}

// AgentsKey returns the Redis key for the set of every known agent ID.
// Pattern: swarm:{instance_name}:agents
func AgentsKey(instanceName string) string {
	return fmt.Sprintf("swarm:%s:agents", instanceName)
}

// MessageKey returns the Redis key for a message hash.
// Pattern: swarm:{instance_name}:message:{message_id}
func MessageKey(instanceName, messageID string) string {
	return fmt.Sprintf("swarm:%s:message:%s", instanceName, messageID)
}

// InboxKey returns the Redis key for an agent's mailbox ZSET.
// Members are message IDs scored by creation time in milliseconds.
// Pattern: swarm:{instance_name}:inbox:{agent_id}
func InboxKey(instanceName, agentID string) string {
	return fmt.Sprintf("swarm:%s:inbox:%s", instanceName, agentID)
}

// TaskKey returns the Redis key for a task hash.
// Pattern: swarm:{instance_name}:task:{task_id}
func TaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("swarm:%s:task:%s", instanceName, taskID)
}

// TasksKey returns the Redis key for the ZSET of all task IDs scored by creation time.
// Pattern: swarm:{instance_name}:tasks
func TasksKey(instanceName string) string {
	return fmt.Sprintf("swarm:%s:tasks", instanceName)
}

// TaskStatusKey returns the Redis key for the set of task IDs in a given status.
// Only open and assigned are indexed.
// Pattern: swarm:{instance_name}:tasks:{status}
func TaskStatusKey(instanceName string, status TaskStatus) string {
	return fmt.Sprintf("swarm:%s:tasks:%s", instanceName, status)
}

// TaskByHashKey returns the Redis key for the content-hash -> task ID index.
// This enables idempotent discovery by looking up tasks by normalized description.
// Pattern: swarm:{instance_name}:task_by_hash:{content_hash}
func TaskByHashKey(instanceName, contentHash string) string {
	return fmt.Sprintf("swarm:%s:task_by_hash:%s", instanceName, contentHash)
}

// LearningKey returns the Redis key for a knowledge entry hash.
// Pattern: swarm:{instance_name}:learning:{entry_id}
func LearningKey(instanceName, entryID string) string {
	return fmt.Sprintf("swarm:%s:learning:%s", instanceName, entryID)
}

// LearningsKey returns the Redis key for the ZSET of knowledge entry IDs.
// Pattern: swarm:{instance_name}:learnings
func LearningsKey(instanceName string) string {
	return fmt.Sprintf("swarm:%s:learnings", instanceName)
}

// DecisionKey returns the Redis key for a decision record hash.
// Pattern: swarm:{instance_name}:decision:{decision_id}
func DecisionKey(instanceName, decisionID string) string {
	return fmt.Sprintf("swarm:%s:decision:%s", instanceName, decisionID)
}

// DecisionsKey returns the Redis key for the ZSET of decision record IDs.
// Pattern: swarm:{instance_name}:decisions
func DecisionsKey(instanceName string) string {
	return fmt.Sprintf("swarm:%s:decisions", instanceName)
}

// NoteKey returns the Redis key for a note hash.
// Pattern: swarm:{instance_name}:note:{note_id}
func NoteKey(instanceName, noteID string) string {
	return fmt.Sprintf("swarm:%s:note:%s", instanceName, noteID)
}

// NotesKey returns the Redis key for an agent's notebook ZSET.
// Pattern: swarm:{instance_name}:notes:{agent_id}
func NotesKey(instanceName, agentID string) string {
	return fmt.Sprintf("swarm:%s:notes:%s", instanceName, agentID)
}

// BroadcastEventsChannel returns the Pub/Sub channel name for broadcast events.
// Pattern: swarm:{instance_name}:broadcast_events
func BroadcastEventsChannel(instanceName string) string {
	return fmt.Sprintf("swarm:%s:broadcast_events", instanceName)
}
