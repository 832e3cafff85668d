// Package relay is the cooperative transport pump for the lobby phase. It
// keeps a websocket to a matchbox-style relay server and exposes peer
// discovery plus raw message exchange. Nothing here blocks the game loop:
// a reader goroutine feeds a channel, and Pump drains it in bounded,
// non-blocking steps.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"driftbox/client/internal/telemetry"
	"driftbox/client/logging"
)

// ErrClosed reports use of a client after Close or after the socket died.
var ErrClosed = errors.New("relay connection closed")

type envelope struct {
	Type string `json:"type"`
	Peer string `json:"peer,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// PeerEventKind discriminates roster changes surfaced by the relay.
type PeerEventKind string

const (
	PeerJoined PeerEventKind = "peer_joined"
	PeerLeft   PeerEventKind = "peer_left"
)

// PeerEvent records one roster change.
type PeerEvent struct {
	Kind PeerEventKind
	Peer string
}

// Message is one inbound payload from a peer, relayed verbatim.
type Message struct {
	From string
	Data []byte
}

// Config assembles a relay client.
type Config struct {
	// URL is the ws:// or wss:// address of the relay room.
	URL string
	// QueueSize bounds the inbound channel between the reader goroutine
	// and Pump. Zero means 64.
	QueueSize int

	Logger    telemetry.Logger
	Publisher logging.Publisher
}

func (c Config) normalized() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Client is the lobby transport. All methods except the reader goroutine's
// internals run on the game loop's control flow; only the error slot is
// shared, guarded by a mutex.
type Client struct {
	cfg       Config
	conn      *websocket.Conn
	logger    telemetry.Logger
	publisher logging.Publisher

	inbound chan envelope
	done    chan struct{}

	id       string
	peers    map[string]struct{}
	events   []PeerEvent
	messages []Message
	outbound []envelope

	mu      sync.Mutex
	readErr error
	closed  bool
}

// Dial connects to the relay room and starts the reader.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.normalized()
	if cfg.URL == "" {
		return nil, fmt.Errorf("relay requires a URL")
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", cfg.URL, err)
	}

	client := &Client{
		cfg:       cfg,
		conn:      conn,
		logger:    cfg.Logger,
		publisher: publisher,
		inbound:   make(chan envelope, cfg.QueueSize),
		done:      make(chan struct{}),
		peers:     map[string]struct{}{},
	}
	go client.readLoop()
	return client, nil
}

// readLoop decodes inbound envelopes until the socket dies or Close is
// called. Malformed messages are discarded, not fatal. The select on done
// keeps the goroutine from parking forever on a full inbound queue that
// nobody drains anymore.
func (c *Client) readLoop() {
	defer close(c.inbound)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.readErr == nil {
				c.readErr = err
			}
			c.mu.Unlock()
			return
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			if c.logger != nil {
				c.logger.Printf("relay: discarding malformed message: %v", err)
			}
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

// Pump flushes queued outbound envelopes and drains whatever inbound
// traffic has arrived. It never blocks; the pacer calls it several times
// per outer tick.
func (c *Client) Pump() {
	if c.terminal() {
		return
	}

	for _, env := range c.outbound {
		if err := c.conn.WriteJSON(env); err != nil {
			c.fail(err)
			return
		}
	}
	c.outbound = c.outbound[:0]

	for {
		select {
		case env, ok := <-c.inbound:
			if !ok {
				c.fail(nil)
				return
			}
			c.dispatch(env)
		default:
			return
		}
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Type {
	case "id":
		c.id = env.Peer
	case "peer_joined":
		if _, known := c.peers[env.Peer]; known {
			return
		}
		c.peers[env.Peer] = struct{}{}
		c.events = append(c.events, PeerEvent{Kind: PeerJoined, Peer: env.Peer})
		c.publisher.Publish(context.Background(), logging.Event{
			Type:     "relay_peer_joined",
			Category: logging.CategoryNetcode,
			Severity: logging.SeverityInfo,
			Payload:  map[string]any{"peer": env.Peer},
		})
	case "peer_left":
		if _, known := c.peers[env.Peer]; !known {
			return
		}
		delete(c.peers, env.Peer)
		c.events = append(c.events, PeerEvent{Kind: PeerLeft, Peer: env.Peer})
		c.publisher.Publish(context.Background(), logging.Event{
			Type:     "relay_peer_left",
			Category: logging.CategoryNetcode,
			Severity: logging.SeverityInfo,
			Payload:  map[string]any{"peer": env.Peer},
		})
	case "data":
		c.messages = append(c.messages, Message{From: env.From, Data: env.Data})
	default:
		if c.logger != nil {
			c.logger.Printf("relay: unknown message type %q", env.Type)
		}
	}
}

// ID returns the identity assigned by the relay, empty until the first
// pump after the server's hello.
func (c *Client) ID() string {
	return c.id
}

// Peers lists currently known peers in stable order.
func (c *Client) Peers() []string {
	peers := make([]string, 0, len(c.peers))
	for peer := range c.peers {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// Events drains roster changes accumulated since the last call.
func (c *Client) Events() []PeerEvent {
	drained := c.events
	c.events = nil
	return drained
}

// Receive drains inbound peer messages accumulated since the last call.
func (c *Client) Receive() []Message {
	drained := c.messages
	c.messages = nil
	return drained
}

// Send queues one payload for a peer. It is written on the next Pump.
func (c *Client) Send(to string, data []byte) error {
	if c.terminal() {
		return c.closeError()
	}
	c.outbound = append(c.outbound, envelope{Type: "data", To: to, Data: data})
	return nil
}

// Err reports why the connection died, nil while it is healthy.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close tears the socket down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteMessage(websocket.CloseMessage, message)
	return c.conn.Close()
}

func (c *Client) terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.readErr != nil
}

func (c *Client) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		if err == nil {
			err = ErrClosed
		}
		c.readErr = err
	}
}
