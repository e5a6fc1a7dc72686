package home

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"github.com/disgoorg/disgo/gateway"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	keepAlivePingInterval = 5 * time.Minute
	consoleStreamBuffer   = 256
	consolePingInterval   = 30 * time.Second
	consoleWriteTimeout   = 10 * time.Second
	maxGoroutines         = 10000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (a *App) registerKeepAlive() {
	a.Loader.RegisterDaemon(sys.LogKeepAlive, func(ctx context.Context) (bool, func(), func()) {
		runCtx, cancel := context.WithCancel(ctx)
		return true, func() {
			ticker := time.NewTicker(keepAlivePingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case t := <-ticker.C:
					sys.LogKeepAlive(sys.MsgKeepAlivePing, t.Format(time.RFC3339))
				}
			}
		}, cancel
	})
}

// ServeKeepAlive starts the HTTP server in the background. It runs before
// the gateway connects so hosting platforms see the port open early.
func (a *App) ServeKeepAlive() *http.Server {
	srv := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.keepAliveHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sys.LogKeepAlive(sys.MsgKeepAliveListen, a.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sys.LogKeepAlive(sys.MsgKeepAliveFail, err)
		}
	}()
	return srv
}

func (a *App) keepAliveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(sys.MsgKeepAliveRoot))
	})

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("gateway", a.gatewayReady)
	health.AddReadinessCheck("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := a.Store.Ping(ctx)
		return err
	})
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)

	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	if a.Config.ConsoleStreamToken != "" {
		mux.HandleFunc("/console", a.serveConsoleStream)
	}
	return mux
}

func (a *App) gatewayReady() error {
	client := a.Client()
	if client == nil || client.Gateway == nil {
		return errNotReady
	}
	if s := client.Gateway.Status(); s != gateway.StatusReady {
		return fmt.Errorf("gateway status %d", s)
	}
	return nil
}

func (a *App) serveConsoleStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.Config.ConsoleStreamToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sys.LogKeepAlive(sys.MsgConsoleStreamDrop, r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	sys.LogKeepAlive(sys.MsgConsoleStreamOpen, r.RemoteAddr)

	lines, unsubscribe := a.Relay.Subscribe(consoleStreamBuffer)
	defer unsubscribe()

	// The stream is write-only; reading only surfaces the peer's close.
	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	ping := time.NewTicker(consolePingInterval)
	defer ping.Stop()

	for {
		select {
		case err := <-closed:
			sys.LogKeepAlive(sys.MsgConsoleStreamDrop, r.RemoteAddr, err)
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(consoleWriteTimeout)); err != nil {
				sys.LogKeepAlive(sys.MsgConsoleStreamDrop, r.RemoteAddr, err)
				return
			}
		case line, ok := <-lines:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(consoleWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				sys.LogKeepAlive(sys.MsgConsoleStreamDrop, r.RemoteAddr, err)
				return
			}
		}
	}
}
