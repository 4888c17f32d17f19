package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePresenceUpdate(t *testing.T) {
	raw := []byte(`{
		"type": "presence_update",
		"workspace_id": "ws-1",
		"user_id": "u2",
		"cursor_position": {"x": 10, "y": 20}
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePresenceUpdate, msg.Type)
	assert.Equal(t, "ws-1", msg.WorkspaceID)
	assert.Equal(t, "u2", msg.UserID)
	require.NotNil(t, msg.CursorPosition)
	assert.Equal(t, 10.0, msg.CursorPosition.X)
	assert.Equal(t, 20.0, msg.CursorPosition.Y)
	assert.Nil(t, msg.SelectedElements)
}

func TestDecodeConflictWarning(t *testing.T) {
	raw := []byte(`{
		"type": "conflict_warning",
		"workspace_id": "ws-1",
		"element_type": "table",
		"element_id": "tbl-9",
		"message": "table was deleted by another user"
	}`)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeConflictWarning, msg.Type)
	assert.Equal(t, ElementTable, msg.ElementType)
	assert.Equal(t, "tbl-9", msg.ElementID)
	assert.Equal(t, "table was deleted by another user", msg.Text)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeRejectsUntaggedFrame(t *testing.T) {
	_, err := Decode([]byte(`{"workspace_id": "ws-1"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestEncodeOmitsEmptyPayloadFields(t *testing.T) {
	data, err := Encode(&Message{
		Type:        TypeUpdateTable,
		WorkspaceID: "ws-1",
		TableID:     "tbl-1",
		Data:        []byte(`{"name":"orders"}`),
	})
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"type":"update_table"`)
	assert.Contains(t, s, `"workspace_id":"ws-1"`)
	assert.NotContains(t, s, "cursor_position")
	assert.NotContains(t, s, "relationship_id")
}
