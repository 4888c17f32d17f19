// Package protocol defines the wire format of the collaboration channel:
// a JSON envelope tagged by type and workspace, with the payload fields
// flattened alongside the discriminators.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType tags every frame on the collaboration channel.
type MessageType string

// Inbound message types.
const (
	TypeTableUpdated        MessageType = "table_updated"
	TypeRelationshipUpdated MessageType = "relationship_updated"
	TypePresenceUpdate      MessageType = "presence_update"
	TypeConflictWarning     MessageType = "conflict_warning"
)

// Outbound message types. presence_update travels in both directions.
const (
	TypeUpdateTable        MessageType = "update_table"
	TypeUpdateRelationship MessageType = "update_relationship"
)

// ElementType names the kinds of workspace elements a message can target.
type ElementType string

const (
	ElementTable           ElementType = "table"
	ElementRelationship    ElementType = "relationship"
	ElementDataFlowDiagram ElementType = "data_flow_diagram"
)

// CursorPosition is a canvas coordinate.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Message is the wire envelope. Fields not used by a given type stay
// empty and are omitted on encode.
type Message struct {
	Type        MessageType `json:"type"`
	WorkspaceID string      `json:"workspace_id"`

	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`

	TableID        string          `json:"table_id,omitempty"`
	RelationshipID string          `json:"relationship_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`

	CursorPosition   *CursorPosition `json:"cursor_position,omitempty"`
	SelectedElements []string        `json:"selected_elements,omitempty"`

	ElementType ElementType `json:"element_type,omitempty"`
	ElementID   string      `json:"element_id,omitempty"`
	Text        string      `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Encode serializes a message for the wire.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses wire bytes into a Message. Untagged frames are rejected
// so the router never dispatches them.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMalformedMessage
	}
	return &msg, nil
}
