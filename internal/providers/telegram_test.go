package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/internal/logging"
)

func telegramServer(t *testing.T, ok bool, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifyStaffSends(t *testing.T) {
	var calls int32
	srv := telegramServer(t, true, &calls)
	n, err := NewTelegramNotifier("123:abc", -100, 5, logging.Nop(), bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, n.NotifyStaff(context.Background(), "New appeal on violation v1"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNotifyStaffRetriesThenFails(t *testing.T) {
	var calls int32
	srv := telegramServer(t, false, &calls)
	n, err := NewTelegramNotifier("123:abc", -100, 5, logging.Nop(), bot.WithServerURL(srv.URL))
	require.NoError(t, err)
	n.retryDelay = time.Millisecond

	err = n.NotifyStaff(context.Background(), "hello")
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNewTelegramNotifierRequiresTarget(t *testing.T) {
	_, err := NewTelegramNotifier("", -100, 1, logging.Nop())
	assert.Error(t, err)
	_, err = NewTelegramNotifier("123:abc", 0, 1, logging.Nop())
	assert.Error(t, err)
}
