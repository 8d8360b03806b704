package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeNodeCreated  = "node.created"
	EventTypeNodeUpdated  = "node.updated"
	EventTypeNodeArchived = "node.archived"
	EventTypeNodeRestored = "node.restored"

	EventTypeUserCreated         = "user.created"
	EventTypeUserUpdated         = "user.updated"
	EventTypeUserArchived        = "user.archived"
	EventTypeUserRestored        = "user.restored"
	EventTypeUserPasswordChanged = "user.password_changed"
)

// AllEventTypes lists every event the hierarchy and directory services emit.
var AllEventTypes = []string{
	EventTypeNodeCreated,
	EventTypeNodeUpdated,
	EventTypeNodeArchived,
	EventTypeNodeRestored,
	EventTypeUserCreated,
	EventTypeUserUpdated,
	EventTypeUserArchived,
	EventTypeUserRestored,
	EventTypeUserPasswordChanged,
}

type NodeEvent struct {
	BaseEvent
	NodeID  string `json:"node_id"`
	Parent  string `json:"parent,omitempty"`
	ActorID string `json:"actor_id"`
}

func NewNodeEvent(eventType, nodeID, parent, actorID string) *NodeEvent {
	return &NodeEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"node_id":  nodeID,
				"parent":   parent,
				"actor_id": actorID,
			},
		},
		NodeID:  nodeID,
		Parent:  parent,
		ActorID: actorID,
	}
}

type UserEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	NodeID  string `json:"node_id"`
	ActorID string `json:"actor_id"`
}

func NewUserEvent(eventType, userID, nodeID, actorID string) *UserEvent {
	return &UserEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":  userID,
				"node_id":  nodeID,
				"actor_id": actorID,
			},
		},
		UserID:  userID,
		NodeID:  nodeID,
		ActorID: actorID,
	}
}
