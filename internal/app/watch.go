package app

import (
	"bytes"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	watchWriteWait = 5 * time.Second
	watchPongWait  = 60 * time.Second
)

// handleWatch streams the status report over a websocket. The current report is sent
// on connect, then again whenever it changes, checked once per watch interval.
func (a *App) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		a.log.Debug("status watch upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := a.clock.Ticker(a.watchInterval)
	defer ticker.Stop()

	var last []byte
	send := func() error {
		b, err := json.Marshal(a.reg.Snapshot())
		if err != nil {
			return err
		}
		if bytes.Equal(b, last) {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait))
		}
		last = b
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ticker.C:
			if err := send(); err != nil {
				a.log.Debug("status watch ended", "error", err)
				return
			}
		case <-closed:
			return
		case <-a.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(watchWriteWait))
			return
		}
	}
}
