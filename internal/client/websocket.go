// ABOUTME: WebSocket client for the vsync feed protocol
// ABOUTME: Handles connection, handshake, and message routing to typed channels
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/AOSP-14-RMX2020/platform-frameworks-native/internal/protocol"
	"github.com/gorilla/websocket"
)

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	Version    int
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	Samples     chan protocol.SampleUpdate
	Models      chan protocol.ModelUpdate
	Phases      chan protocol.PhaseUpdate
	RateChanges chan protocol.RateChange

	// State
	connected bool
	welcome   protocol.ServerWelcome
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:      config,
		Samples:     make(chan protocol.SampleUpdate, 100),
		Models:      make(chan protocol.ModelUpdate, 100),
		Phases:      make(chan protocol.PhaseUpdate, 10),
		RateChanges: make(chan protocol.RateChange, 10),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect establishes the WebSocket connection and performs the handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/vsync"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends monitor/hello and waits for server/welcome
func (c *Client) handshake() error {
	hello := protocol.Message{
		Type: protocol.TypeMonitorHello,
		Payload: protocol.MonitorHello{
			ClientID: c.config.ClientID,
			Name:     c.config.Name,
			Version:  c.config.Version,
		},
	}

	if err := c.sendJSON(hello); err != nil {
		return fmt.Errorf("failed to send monitor/hello: %w", err)
	}

	// Wait for server/welcome (with timeout)
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/welcome: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{}) // Clear deadline

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/welcome: %w", err)
	}

	if msg.Type == protocol.TypeServerError {
		var se protocol.ServerError
		if err := protocol.DecodePayload(msg, &se); err == nil {
			return fmt.Errorf("server rejected hello: %s", se.Message)
		}
	}
	if msg.Type != protocol.TypeServerWelcome {
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerWelcome, msg.Type)
	}

	var welcome protocol.ServerWelcome
	if err := protocol.DecodePayload(msg, &welcome); err != nil {
		return fmt.Errorf("failed to decode server/welcome: %w", err)
	}

	c.mu.Lock()
	c.welcome = welcome
	c.mu.Unlock()

	log.Printf("Handshake complete: %s tracks %d display(s)", welcome.Name, len(welcome.Displays))

	return nil
}

// Welcome returns the handshake response describing the daemon's displays
func (c *Client) Welcome() protocol.ServerWelcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.welcome
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("Read error: %v", err)
			return
		}

		c.handleJSONMessage(data)
	}
}

// handleJSONMessage routes feed messages to the typed channels
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSample:
		var sample protocol.SampleUpdate
		if err := protocol.DecodePayload(msg, &sample); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Samples <- sample:
		case <-c.ctx.Done():
		}

	case protocol.TypeModel:
		var model protocol.ModelUpdate
		if err := protocol.DecodePayload(msg, &model); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Models <- model:
		case <-c.ctx.Done():
		}

	case protocol.TypePhase:
		var phase protocol.PhaseUpdate
		if err := protocol.DecodePayload(msg, &phase); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.Phases <- phase:
		case <-c.ctx.Done():
		}

	case protocol.TypeRateChange:
		var rate protocol.RateChange
		if err := protocol.DecodePayload(msg, &rate); err != nil {
			log.Printf("Bad %s payload: %v", msg.Type, err)
			return
		}
		select {
		case c.RateChanges <- rate:
		case <-c.ctx.Done():
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// Done is closed once the connection has shut down, whether by Close or by
// a read error.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// RequestRenderRate asks the daemon to pin a display's render rate
func (c *Client) RequestRenderRate(display string, hz float64) error {
	msg := protocol.Message{
		Type: protocol.TypeRateChange,
		Payload: protocol.RateChange{
			Display:    display,
			RenderRate: hz,
		},
	}
	return c.sendJSON(msg)
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
