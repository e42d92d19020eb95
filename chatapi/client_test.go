package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetUpdates_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottoken123/getUpdates", r.URL.Path)
		json.NewEncoder(w).Encode(apiEnvelope{
			OK:     true,
			Result: json.RawMessage(`[{"update_id":1,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"/ping"}}]`),
		})
	}))
	defer srv.Close()

	c := New("token123", WithBaseURL(srv.URL))
	updates, err := c.GetUpdates(context.Background(), GetUpdatesRequest{Offset: 1})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, int64(1), updates[0].UpdateID)
	require.Equal(t, "/ping", updates[0].Message.Text)
}

func TestSendMessage_RequiresChatID(t *testing.T) {
	c := New("token123")
	_, err := c.SendMessage(context.Background(), SendMessageRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendMessage_NonOKReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiEnvelope{OK: false, ErrorCode: 400, Description: "chat not found"})
	}))
	defer srv.Close()

	c := New("token123", WithBaseURL(srv.URL), WithRetry(1, time.Millisecond))
	_, err := c.SendMessage(context.Background(), SendMessageRequest{ChatID: 5, Text: "hi"})
	require.ErrorIs(t, err, ErrAPI)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.Code)
}

func TestCall_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(apiEnvelope{
			OK:     true,
			Result: json.RawMessage(`{"message_id":42,"chat":{"id":5,"type":"private"}}`),
		})
	}))
	defer srv.Close()

	c := New("token123", WithBaseURL(srv.URL), WithRetry(5, time.Millisecond))
	msg, err := c.SendMessage(context.Background(), SendMessageRequest{ChatID: 5, Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, int64(42), msg.MessageID)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestMessage_CommandText(t *testing.T) {
	m := &Message{
		Text:     "/ping extra args",
		Entities: []MessageEntity{{Type: BotCommand, Offset: 0, Length: 5}},
	}
	cmd, rest, ok := m.CommandText()
	require.True(t, ok)
	require.Equal(t, "/ping", cmd)
	require.Equal(t, "extra args", rest)
}

func TestMessage_CommandText_NoEntities(t *testing.T) {
	m := &Message{Text: "just chatting"}
	_, _, ok := m.CommandText()
	require.False(t, ok)
}
