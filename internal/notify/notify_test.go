package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name  string
	err   error
	calls []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.calls = append(s.calls, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{" summary ", ""}, nil)

	require.NoError(t, n.Notify(context.Background(), "tx_submitted", "a", "m"))
	require.NoError(t, n.Notify(context.Background(), "summary", "b", "m"))
	require.NoError(t, n.NotifyAll(context.Background(), "c", "m"))
	assert.Equal(t, []string{"b", "c"}, s.calls)
	assert.True(t, n.Enabled())
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("down")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Notify(context.Background(), "anything", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.calls, 1)
}

func TestTelegramSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["chat_id"])
		assert.Equal(t, "HTML", body["parse_mode"])
		assert.Equal(t, "<b>Swap &lt;done&gt;</b>\n1 WETH &amp; more", body["text"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Swap <done>", "1 WETH & more"))
}

func TestDiscordSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Embeds []discordEmbed `json:"embeds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Embeds, 1)
		assert.Equal(t, "t", body.Embeds[0].Title)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
}
