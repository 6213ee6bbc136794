package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peerdrop/internal/logger"
)

type Config struct {
	Addr   string
	Logger *logrus.Logger
}

type Server struct {
	config   Config
	logger   *logrus.Logger
	hub      *Hub
	registry *prometheus.Registry
	upgrader websocket.Upgrader
	listener net.Listener
	http     *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		config:   cfg,
		logger:   log,
		hub:      NewHub(NewMetrics(registry), log),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		listener: ln,
	}
	s.http = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL is the websocket endpoint clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/ws"
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down signaling server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.Addr()).Info("Signaling server started")

	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": s.hub.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.serveWS)
	return r
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debugf("Upgrade failed: %v", err)
		return
	}

	s.logger.Debugf("Peer connected from %s", conn.RemoteAddr())
	p := newPeer(s.hub, conn, s.logger)
	go p.writePump()
	go p.readPump()
}
