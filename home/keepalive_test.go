package home

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NinjaGamerz509/Bot/proc"
	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestKeepAliveRoot(t *testing.T) {
	h := newTestApp(t, nil).keepAliveHandler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sys.MsgKeepAliveRoot, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestKeepAliveHealth(t *testing.T) {
	h := newTestApp(t, nil).keepAliveHandler()

	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ready").Code, "not ready before the gateway connects")
}

func TestKeepAliveMetrics(t *testing.T) {
	app := newTestApp(t, nil)
	app.Relay.Write(proc.StreamStdout, "Done (3.2s)!\n")

	rec := get(t, app.keepAliveHandler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "darkmc_server_state")
	assert.Contains(t, body, "darkmc_console_bytes_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestConsoleStreamDisabledWithoutToken(t *testing.T) {
	h := newTestApp(t, nil).keepAliveHandler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/console?token=x").Code)
}

func TestConsoleStreamRejectsBadToken(t *testing.T) {
	h := newTestApp(t, func(cfg *sys.Config) { cfg.ConsoleStreamToken = "s3cret" }).keepAliveHandler()

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/console").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/console?token=wrong").Code)
}

func TestConsoleStreamDeliversOutput(t *testing.T) {
	app := newTestApp(t, func(cfg *sys.Config) { cfg.ConsoleStreamToken = "s3cret" })
	srv := httptest.NewServer(app.keepAliveHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/console?token=s3cret"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	// The subscription is registered after the upgrade; retry until it lands.
	got := make(chan string, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err == nil {
			got <- string(data)
		}
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case line := <-got:
			assert.Equal(t, "[Server] joined the game\n", line)
			return
		case <-tick.C:
			app.Relay.Write(proc.StreamStdout, "[Server] joined the game\n")
		case <-deadline:
			t.Fatal("no console line received")
		}
	}
}
