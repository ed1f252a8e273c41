package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		check   func(t *testing.T, msg *Message)
	}{
		{
			name:  "request with string id",
			input: `{"jsonrpc":"2.0","id":"req-1","method":"tools/list","params":{}}`,
			check: func(t *testing.T, msg *Message) {
				assert.True(t, msg.IsRequest())
				assert.False(t, msg.IsNotification())
				assert.Equal(t, "req-1", msg.ID)
				assert.Equal(t, "tools/list", msg.Method)
			},
		},
		{
			name:  "request with integer id",
			input: `{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			check: func(t *testing.T, msg *Message) {
				assert.True(t, msg.IsRequest())
				assert.Equal(t, int64(42), msg.ID)
			},
		},
		{
			name:  "notification has no id",
			input: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			check: func(t *testing.T, msg *Message) {
				assert.True(t, msg.IsNotification())
				assert.False(t, msg.IsRequest())
			},
		},
		{
			name:  "success response",
			input: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			check: func(t *testing.T, msg *Message) {
				assert.True(t, msg.IsResponse())
			},
		},
		{
			name:    "missing jsonrpc version",
			input:   `{"id":1,"method":"ping"}`,
			wantErr: ErrInvalidVersion,
		},
		{
			name:    "wrong jsonrpc version",
			input:   `{"jsonrpc":"1.0","id":1,"method":"ping"}`,
			wantErr: ErrInvalidVersion,
		},
		{
			name:    "batch rejected",
			input:   `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`,
			wantErr: ErrBatchRejected,
		},
		{
			name:    "batch rejected with leading whitespace",
			input:   "\n\t [{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}]",
			wantErr: ErrBatchRejected,
		},
		{
			name:    "no method and no result",
			input:   `{"jsonrpc":"2.0","id":1}`,
			wantErr: ErrMissingMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, msg)
		})
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	resp := NewResponse("req-9", map[string]any{"ok": true})
	data, err := Encode(resp)
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, msg.IsResponse())
	assert.Equal(t, "req-9", msg.ID)

	var result map[string]any
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, true, result["ok"])
}

func TestNewError(t *testing.T) {
	resp := NewError(int64(3), InvalidParams, "bad params", map[string]any{"field": "name"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
	assert.Equal(t, "bad params", resp.Error.Message)

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"result"`)
}

func TestNewMethodNotFound(t *testing.T) {
	resp := NewMethodNotFound("id-1", "bogus/method")
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bogus/method")
}

func TestNotificationHasNoID(t *testing.T) {
	n := NewNotification("notifications/progress", map[string]any{"progress": 1})
	data, err := Encode(n)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
	assert.Contains(t, string(data), `"notifications/progress"`)
}

func TestErrorDetailImplementsError(t *testing.T) {
	var err error = &ErrorDetail{Code: InternalError, Message: "boom"}
	assert.Contains(t, err.Error(), "-32603")
}
