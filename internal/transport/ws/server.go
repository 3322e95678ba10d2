package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"visionbridge-server-go/internal/platform/logging"
)

// Server upgrades HTTP requests into websocket sessions and tracks them.
type Server struct {
	deps     SessionDeps
	hub      *Hub
	logger   *logging.Logger
	upgrader *websocket.Upgrader
}

// NewServer builds the websocket transport.
func NewServer(deps SessionDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Server{
		deps:   deps,
		hub:    NewHub(logger),
		logger: logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the upgrade endpoint on the engine.
func (s *Server) Register(engine *gin.Engine) {
	engine.GET("/ws", s.handleUpgrade)
	s.logger.InfoTag("WS", "websocket route registered")
}

// SessionCount reports the number of live sessions.
func (s *Server) SessionCount() int {
	return s.hub.SessionCount()
}

// Shutdown closes every active session.
func (s *Server) Shutdown() {
	s.hub.CloseAll()
}

func (s *Server) handleUpgrade(c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.ErrorTag("WS", "upgrade failed: %v", err)
		return
	}

	userID := c.Query("user-id")
	if userID == "" {
		userID = c.GetHeader("User-Id")
	}

	session := NewSession(NewConnection(c.Request.RemoteAddr, socket), userID, s.deps)
	s.hub.Register(session)
	s.logger.InfoTag("WS", "session %s connected: user=%s", session.ID(), userID)

	go func() {
		defer func() {
			s.hub.Unregister(session.ID())
			session.Close()
		}()
		session.Run()
	}()
}
