package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to availability feed connections. Connections live until the
// peer leaves or the server's lifetime ends.
type Server struct {
	hub          *Hub
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	lifetime context.Context
	stop     context.CancelFunc
}

// NewServer builds ws server.
func NewServer(hub *Hub, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &Server{
		lifetime:     lifetime,
		stop:         stop,
		hub:          hub,
		logger:       logger.Named("ws"),
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run blocks until ctx is done and then closes every feed connection.
func (s *Server) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Close()
	return nil
}

// Close sends a going-away frame to every feed client and disconnects it. Connections
// upgraded afterwards are closed immediately.
func (s *Server) Close() {
	s.stop()
}

// HandleWS serves /ws/slots. An optional station_id query parameter narrows the feed.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	stationID := strings.TrimSpace(r.URL.Query().Get("station_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.lifetime)
	client := newClient(uuid.NewString(), stationID, conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
	})
	s.hub.Add(client)
	s.logger.Info("feed client connected", zap.String("client_id", client.ID()), zap.String("station_id", stationID))

	go client.Start(ctx)
}
