package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/session"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleWebSocket streams a session's events until the client goes away or the
// session closes. The client only reads; commands go through the REST routes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	sess, err := s.manager.Get(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	ctx := logging.WithSessionID(context.WithoutCancel(r.Context()), sess.ID)
	log := logging.NewLogger(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	listener := sess.Subscribe()
	defer sess.Unsubscribe(listener)
	log.Infof("websocket connected listeners=%d", sess.ListenerCount())

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4 * 1024)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("websocket read: %v", err)
				}
				return
			}
		}
	}()

	snapshot := sess.Snapshot()
	if err := writeEvent(conn, session.Event{Type: session.EventState, SessionID: sess.ID, Snapshot: &snapshot}); err != nil {
		log.Warnf("websocket write: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Infof("websocket disconnected")
			return
		case <-listener.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait),
			)
			return
		case event := <-listener.C:
			if err := writeEvent(conn, event); err != nil {
				log.Warnf("websocket write: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event session.Event) error {
	body, err := sonic.Marshal(event)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, body)
}
