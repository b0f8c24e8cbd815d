// ABOUTME: Feed daemon core serving vsync timing models over WebSocket
// ABOUTME: Manages display pumps, monitor connections, and broadcast fan-out
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/config"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/discovery"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	"github.com/AOSP-14-RMX2020/platform-frameworks-native/pkg/vsync"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server is the vsync feed daemon.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	serverID string

	upgrader websocket.Upgrader

	httpServer    *http.Server
	metricsServer *http.Server
	mux           *http.ServeMux

	// Monitor management
	monitors   map[string]*Monitor
	monitorsMu sync.RWMutex

	// Daemon clock, nanoseconds since start. Shared by every display so
	// samples and predictions live on one timeline.
	clock vsync.SystemClock

	displays []*Display

	metrics *Metrics

	mdnsManager *discovery.Manager

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Monitor represents a connected feed monitor.
type Monitor struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan chan protocol.Message
}

// New builds the daemon from its configuration.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		log:      log,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Local network tool, browser origins are not filtered.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		monitors: make(map[string]*Monitor),
		clock:    vsync.NewSystemClock(),
		metrics:  NewMetrics(),
		stopChan: make(chan struct{}),
	}

	for _, dc := range cfg.Displays {
		d, err := newDisplay(s, dc)
		if err != nil {
			return nil, fmt.Errorf("display %q: %w", dc.Name, err)
		}
		s.displays = append(s.displays, d)
	}

	s.mux.HandleFunc("/vsync", s.handleWebSocket)
	s.mux.HandleFunc("/debug/vsync", s.handleDump)

	return s, nil
}

// Handler exposes the HTTP mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the daemon until Stop is called or a listener fails.
func (s *Server) Start() error {
	s.log.Info("daemon starting",
		zap.String("name", s.cfg.Server.Name),
		zap.String("id", s.serverID),
		zap.Int("displays", len(s.displays)))

	ctx, cancelPumps := context.WithCancel(context.Background())
	defer cancelPumps()

	if s.cfg.Server.MDNS {
		port, err := listenPort(s.cfg.Server.Listen)
		if err != nil {
			s.log.Warn("cannot advertise feed", zap.Error(err))
		} else {
			s.mdnsManager = discovery.NewManager(discovery.Config{
				InstanceName: s.cfg.Server.Name,
				Port:         port,
				Log:          s.log,
			})
			if err := s.mdnsManager.Advertise(); err != nil {
				s.log.Warn("mdns advertisement failed", zap.Error(err))
			}
		}
	}

	for _, d := range s.displays {
		d := d
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			d.run(ctx)
		}()
	}

	if s.cfg.Server.MetricsListen != "" {
		s.metricsServer = &http.Server{
			Addr:    s.cfg.Server.MetricsListen,
			Handler: s.metrics.Handler(),
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				s.log.Warn("metrics server failed", zap.Error(err))
			}
		}()
		s.log.Info("metrics listening", zap.String("addr", s.cfg.Server.MetricsListen))
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: s.mux,
	}
	s.log.Info("feed listening", zap.String("addr", s.cfg.Server.Listen))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("daemon shutting down")
	case err := <-errChan:
		s.log.Error("feed server error", zap.Error(err))
		serverErr = err
	}

	// Reject new connections from here on.
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	cancelPumps()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("feed shutdown error", zap.Error(err))
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("metrics shutdown error", zap.Error(err))
		}
	}

	// Websocket connections are hijacked, Shutdown does not close them.
	s.monitorsMu.Lock()
	for _, m := range s.monitors {
		m.Conn.Close()
	}
	s.monitorsMu.Unlock()

	s.wg.Wait()
	s.log.Info("daemon stopped")

	if serverErr != nil {
		return fmt.Errorf("feed server failed: %w", serverErr)
	}
	return nil
}

// Stop asks Start to shut the daemon down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket upgrades feed connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	s.log.Info("new connection", zap.String("remote", r.RemoteAddr))

	s.handleConnection(conn)
}

// handleConnection manages a monitor connection.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.log.Info("rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	// Wait for monitor/hello
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Warn("error reading hello", zap.Error(err))
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("error parsing hello", zap.Error(err))
		return
	}

	if msg.Type != protocol.TypeMonitorHello {
		s.log.Warn("unexpected first message", zap.String("type", msg.Type))
		return
	}

	var hello protocol.MonitorHello
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		s.log.Warn("error decoding hello", zap.Error(err))
		return
	}

	if hello.ClientID == "" || hello.Name == "" {
		s.log.Warn("hello missing client_id or name")
		return
	}

	s.log.Info("monitor hello",
		zap.String("name", hello.Name),
		zap.String("id", hello.ClientID))

	monitor := &Monitor{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan protocol.Message, 100),
	}

	// Check for duplicate monitor ID and register atomically
	s.monitorsMu.Lock()
	if existing, exists := s.monitors[hello.ClientID]; exists {
		s.monitorsMu.Unlock()
		s.log.Warn("duplicate monitor id",
			zap.String("id", hello.ClientID),
			zap.String("existing", existing.Name))

		errMsg := protocol.Message{
			Type: protocol.TypeServerError,
			Payload: protocol.ServerError{
				Error:   "duplicate_client_id",
				Message: "monitor ID already connected",
			},
		}
		if data, err := json.Marshal(errMsg); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}

	s.monitors[monitor.ID] = monitor
	s.monitorsMu.Unlock()
	s.metrics.monitors.Inc()

	defer func() {
		s.monitorsMu.Lock()
		delete(s.monitors, monitor.ID)
		s.monitorsMu.Unlock()
		close(monitor.sendChan)
		s.metrics.monitors.Dec()
		s.log.Info("monitor disconnected", zap.String("name", monitor.Name))
	}()

	welcome := protocol.ServerWelcome{
		ServerID: s.serverID,
		Name:     s.cfg.Server.Name,
		Version:  protocol.Version,
		Displays: s.displayInfos(),
	}

	if err := s.sendMessage(monitor, protocol.TypeServerWelcome, welcome); err != nil {
		s.log.Warn("error queueing welcome", zap.Error(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorWriter(monitor)
	}()

	// Read messages from the monitor
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket error", zap.Error(err))
			}
			break
		}

		s.handleMonitorMessage(monitor, data)
	}
}

// monitorWriter drains a monitor's send queue onto the wire.
func (s *Server) monitorWriter(m *Monitor) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-m.sendChan:
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Warn("error marshaling message", zap.Error(err))
				continue
			}
			m.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := m.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("monitor write failed",
					zap.String("monitor", m.Name),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := m.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleMonitorMessage processes requests from monitors.
func (s *Server) handleMonitorMessage(m *Monitor, data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("bad monitor message",
			zap.String("monitor", m.Name),
			zap.Error(err))
		return
	}

	switch msg.Type {
	case protocol.TypeRateChange:
		var req protocol.RateChange
		if err := protocol.DecodePayload(msg, &req); err != nil {
			s.log.Warn("bad rate request", zap.Error(err))
			return
		}
		d := s.displayByName(req.Display)
		if d == nil {
			s.log.Warn("rate request for unknown display", zap.String("display", req.Display))
			return
		}
		s.log.Info("render rate pinned",
			zap.String("display", req.Display),
			zap.Float64("hz", req.RenderRate),
			zap.String("monitor", m.Name))
		d.PinRenderRate(req.RenderRate)

	default:
		s.log.Debug("unknown message type", zap.String("type", msg.Type))
	}
}

// sendMessage queues a message to one monitor without blocking.
func (s *Server) sendMessage(m *Monitor, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	s.monitorsMu.RLock()
	defer s.monitorsMu.RUnlock()

	select {
	case m.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("monitor send buffer full")
	}
}

// broadcast fans a message out to every connected monitor. Slow monitors
// drop messages rather than stall the feed.
func (s *Server) broadcast(msgType string, payload interface{}) {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	s.monitorsMu.RLock()
	defer s.monitorsMu.RUnlock()

	for _, m := range s.monitors {
		select {
		case m.sendChan <- msg:
		default:
			s.metrics.droppedTotal.Inc()
		}
	}
}

// handleDump serves the predictor state of every display as plain text.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, d := range s.displays {
		fmt.Fprintf(w, "display %s:\n", d.name)
		fmt.Fprint(w, d.predictor.Dump())
	}
}

func (s *Server) displayInfos() []protocol.DisplayInfo {
	infos := make([]protocol.DisplayInfo, 0, len(s.displays))
	for _, d := range s.displays {
		infos = append(infos, d.info())
	}
	return infos
}

func (s *Server) displayByName(name string) *Display {
	for _, d := range s.displays {
		if d.name == name {
			return d
		}
	}
	return nil
}

// listenPort extracts the port number from a listen address.
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parsing listen port %q: %w", portStr, err)
	}
	return port, nil
}
