package notify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillm/agent-arena/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	mu       sync.Mutex
	texts    []string
	failSend bool
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Arena","username":"arena_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.failSend {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		r.ParseForm()
		f.mu.Lock()
		f.texts = append(f.texts, r.FormValue("text"))
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestTelegram(t *testing.T, fake *fakeTelegram) *Telegram {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)

	tg, err := NewTelegramWithEndpoint("token", server.URL+"/bot%s/%s", 42, server.Client(),
		utils.NewLoggerWithWriter("error", &bytes.Buffer{}))
	require.NoError(t, err)
	return tg
}

func TestTelegram_Send(t *testing.T) {
	fake := &fakeTelegram{}
	tg := newTestTelegram(t, fake)

	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, fake.texts)
}

func TestTelegram_SendError(t *testing.T) {
	fake := &fakeTelegram{failSend: true}
	tg := newTestTelegram(t, fake)

	assert.Error(t, tg.Send(context.Background(), "hello"))
}

func TestTelegram_CancelledContext(t *testing.T) {
	fake := &fakeTelegram{}
	tg := newTestTelegram(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tg.Send(ctx, "hello"), context.Canceled)
	assert.Empty(t, fake.texts)
}

func TestNewTelegram_MissingCredentials(t *testing.T) {
	_, err := NewTelegram("", 0, nil)
	assert.Error(t, err)
}

func TestLogAndNop(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: utils.NewLoggerWithWriter("info", &buf)}

	require.NoError(t, l.Send(context.Background(), "disk full"))
	assert.Contains(t, buf.String(), "ALERT: disk full")
	assert.NoError(t, Nop{}.Send(context.Background(), "ignored"))
}

func TestAlerts(t *testing.T) {
	msg := PersistenceAlert("agent_1", "t1", 3, errors.New("db down"))
	assert.Contains(t, msg, "agent_1")
	assert.Contains(t, msg, "Consecutive failures: 3")
	assert.Contains(t, msg, "db down")

	assert.Contains(t, TaskFailedAlert("decision agent_1", 3, errors.New("boom")), "after 3 attempts")
	assert.Contains(t, TournamentStartedAlert("Cup", 4, 48*time.Hour), "2d 0h")
	assert.Contains(t, TournamentCompletedAlert("Cup", "agent_2", 1234.5), "$1234.50")
	assert.Contains(t, TournamentCompletedAlert("Cup", "", 0), "without a winner")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h 30m"},
		{50 * time.Hour, "2d 2h"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}
