package blackboard

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestEntityKeys tests that every entity key is namespaced by instance
func TestEntityKeys(t *testing.T) {
	id := uuid.New().String()

	cases := []struct {
		name     string
		key      string
		expected string
	}{
		{"agent", AgentKey("default", "backend-1"), "swarm:default:agent:backend-1"},
		{"agents", AgentsKey("default"), "swarm:default:agents"},
		{"message", MessageKey("default", id), "swarm:default:message:" + id},
		{"inbox", InboxKey("default", "backend-1"), "swarm:default:inbox:backend-1"},
		{"task", TaskKey("default", id), "swarm:default:task:" + id},
		{"tasks", TasksKey("default"), "swarm:default:tasks"},
		{"open tasks", TaskStatusKey("default", TaskStatusOpen), "swarm:default:tasks:open"},
		{"task by hash", TaskByHashKey("default", "abc"), "swarm:default:task_by_hash:abc"},
		{"learning", LearningKey("default", id), "swarm:default:learning:" + id},
		{"learnings", LearningsKey("default"), "swarm:default:learnings"},
		{"decision", DecisionKey("default", id), "swarm:default:decision:" + id},
		{"decisions", DecisionsKey("default"), "swarm:default:decisions"},
		{"note", NoteKey("default", id), "swarm:default:note:" + id},
		{"notes", NotesKey("default", "backend-1"), "swarm:default:notes:backend-1"},
		{"broadcast channel", BroadcastEventsChannel("default"), "swarm:default:broadcast_events"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.key != tc.expected {
				t.Errorf("key = %q, expected %q", tc.key, tc.expected)
			}
		})
	}
}

// TestInstanceIsolation verifies two instances never share a key
func TestInstanceIsolation(t *testing.T) {
	key1 := InboxKey("instance-a", "agent")
	key2 := InboxKey("instance-b", "agent")

	if key1 == key2 {
		t.Error("inbox keys for different instances should differ")
	}
	if !strings.Contains(key1, "instance-a") || !strings.Contains(key2, "instance-b") {
		t.Error("keys should embed their instance name")
	}
}
