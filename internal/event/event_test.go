package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	a := New("chat_message", json.RawMessage(`{"text":"hi"}`))
	b := New("chat_message", json.RawMessage(`{"text":"hi"}`))

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "chat_message", a.Type)
	assert.False(t, a.Timestamp.IsZero())
}

func TestEncodeRoundTrip(t *testing.T) {
	env := New("nda_status_update", json.RawMessage(`{"status":"signed"}`))
	raw, err := env.Encode()
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.Type, got.Type)
	assert.JSONEq(t, `{"status":"signed"}`, string(got.Data))
}
