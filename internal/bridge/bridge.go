package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/barkit/barlink/internal/config"
	"github.com/barkit/barlink/internal/logging"
	"github.com/barkit/barlink/internal/monitoring"
	"github.com/barkit/barlink/shmring"
)

// readTimeout paces the relay loop so it can notice shutdown between
// publishes.
const readTimeout = time.Second

// Bridge relays one shared-memory channel to WebSocket clients.
type Bridge struct {
	cfg      config.BridgeConfig
	consumer *shmring.Consumer
	hub      *Hub
	router   *gin.Engine
	srv      *http.Server
	log      *logging.Logger
	metrics  *monitoring.Metrics

	upgrader websocket.Upgrader

	// cmdMu serializes SendCommand across client goroutines; the consumer
	// handle itself is single-threaded.
	cmdMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// New creates a bridge over an attached consumer. The bridge owns the
// consumer and closes it on shutdown.
func New(cfg config.BridgeConfig, consumer *shmring.Consumer, log *logging.Logger, metrics *monitoring.Metrics) *Bridge {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	b := &Bridge{
		cfg:      cfg,
		consumer: consumer,
		hub:      NewHub(log.Named("hub")),
		router:   router,
		log:      log,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.upgrader = websocket.Upgrader{CheckOrigin: b.checkOrigin}

	router.GET("/", b.handleRoot)
	router.GET("/healthz", b.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", b.handleStream)

	return b
}

// Run starts the relay loop and serves HTTP until Close is called.
func (b *Bridge) Run() error {
	go b.relay()

	b.srv = &http.Server{Addr: b.cfg.Addr, Handler: b.router}
	b.log.Info("bridge listening", zap.String("addr", b.cfg.Addr))
	if err := b.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// relay pumps snapshots from the channel to all connected clients.
func (b *Bridge) relay() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		default:
		}

		upd, err := b.consumer.BlockRead(readTimeout)
		switch {
		case err == nil:
			b.metrics.RecordRead(upd.Skipped)
			data, merr := sonic.Marshal(newSnapshotEvent(upd))
			if merr != nil {
				b.log.Error("snapshot marshal failed", zap.Error(merr))
				continue
			}
			b.hub.Broadcast(data)
			b.metrics.RecordWSMessage("out", msgSnapshot)
		case errors.Is(err, shmring.ErrTimeout):
			// Idle interval; loop to re-check shutdown.
		case errors.Is(err, shmring.ErrDisconnected):
			b.metrics.Disconnects.Inc()
			b.log.Warn("producer disconnected")
			data, _ := sonic.Marshal(gin.H{"type": msgDisconnected})
			b.hub.Broadcast(data)
			return
		}
	}
}

func (b *Bridge) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "barlink-bridge",
		"clients":   b.hub.Len(),
		"last_seen": b.consumer.LastSeen(),
	})
}

func (b *Bridge) handleHealth(c *gin.Context) {
	if !b.consumer.ProducerAlive() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "producer gone"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStream upgrades to WebSocket and serves one client.
func (b *Bridge) handleStream(c *gin.Context) {
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := b.hub.Register(conn)
	b.metrics.IncWSConnections()
	defer func() {
		b.hub.Unregister(cl)
		b.metrics.DecWSConnections()
		conn.Close()
	}()

	welcome, _ := sonic.Marshal(gin.H{
		"type":      msgSystem,
		"client_id": cl.id,
		"message":   "connected to barlink bridge",
	})
	b.hub.Send(cl, welcome)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			b.sendError(cl, "malformed message")
			continue
		}
		b.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "ping":
			data, _ := sonic.Marshal(gin.H{"type": msgPong})
			b.hub.Send(cl, data)
		case "command":
			b.handleCommand(cl, msg)
		default:
			b.sendError(cl, "unknown message type")
		}
	}
}

func (b *Bridge) handleCommand(cl *client, msg clientMessage) {
	cmd, err := parseCommand(msg)
	if err != nil {
		b.sendError(cl, err.Error())
		return
	}

	b.cmdMu.Lock()
	err = b.consumer.SendCommand(cmd)
	b.cmdMu.Unlock()
	if err != nil {
		b.metrics.CommandsDropped.Inc()
		b.sendError(cl, err.Error())
		return
	}
	b.metrics.RecordCommandSent(msg.Kind)
}

func (b *Bridge) sendError(cl *client, message string) {
	data, _ := sonic.Marshal(gin.H{"type": msgError, "message": message})
	b.hub.Send(cl, data)
}

func (b *Bridge) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range b.cfg.AllowOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	return false
}

// Close stops the relay, disconnects clients, and releases the consumer.
func (b *Bridge) Close() error {
	close(b.stop)
	<-b.done

	if b.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.srv.Shutdown(ctx); err != nil {
			b.log.Warn("http shutdown", zap.Error(err))
		}
	}
	b.hub.CloseAll()
	return b.consumer.Close()
}
