package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/victornm/quizrank/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	readLimit      = 64 << 10 // larger frames close the connection
	sendBuffer     = 64
)

// TokenParser resolves the optional connection token.
type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

type GatewayConfig struct {
	Hub    *Hub
	Tokens TokenParser
	// RateLimit and RateBurst bound inbound frames per connection.
	RateLimit rate.Limit
	RateBurst int
}

// Gateway upgrades HTTP requests to WebSocket connections joined to the general topic.
type Gateway struct {
	hub      *Hub
	tokens   TokenParser
	limit    rate.Limit
	burst    int
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewGateway(c GatewayConfig) *Gateway {
	g := &Gateway{
		hub:    c.Hub,
		tokens: c.Tokens,
		limit:  c.RateLimit,
		burst:  c.RateBurst,
		conns:  make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if g.limit <= 0 {
		g.limit = 10
	}
	if g.burst <= 0 {
		g.burst = 20
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var id *auth.Identity
	if token := r.URL.Query().Get("token"); token != "" && g.tokens != nil {
		if got, err := g.tokens.Parse(token); err != nil {
			slog.WarnContext(ctx, "notify: invalid connection token, continuing anonymously", "error", err)
		} else {
			id = &got
		}
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "notify: upgrade failed", "error", err)
		return
	}

	c := &Conn{
		id:       uuid.NewString(),
		identity: id,
		ws:       ws,
		hub:      g.hub,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(g.limit, g.burst),
	}

	g.hub.Join(c, General)
	slog.InfoContext(ctx, "notify: connected", "conn", c.id, "authenticated", id != nil)

	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()

	g.wg.Add(1)
	go c.writePump()
	go func() {
		defer g.wg.Done()
		c.readPump(context.WithoutCancel(ctx))

		g.mu.Lock()
		delete(g.conns, c)
		g.mu.Unlock()
	}()
}

// Close ends every open connection and waits for them to leave the hub.
// http.Server.Shutdown does not reach hijacked connections.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	}

	g.wg.Wait()
}

// Conn is one WebSocket connection. It owns its subscriptions and leaves every topic
// when it closes.
type Conn struct {
	id       string
	identity *auth.Identity
	ws       *websocket.Conn
	hub      *Hub
	send     chan []byte
	done     chan struct{}
	limiter  *rate.Limiter
}

func (c *Conn) ID() string { return c.id }

// Send queues payload without blocking. A full buffer drops the frame.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Conn) reply(ctx context.Context, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "notify: marshal reply failed", "conn", c.id, "error", err)
		return
	}
	if !c.Send(b) {
		slog.WarnContext(ctx, "notify: reply dropped", "conn", c.id, "type", msg.Type)
	}
}

func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c.id)
		close(c.done)
		c.ws.Close()
		slog.InfoContext(ctx, "notify: disconnected", "conn", c.id)
	}()

	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "notify: unexpected close", "conn", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply(ctx, errorMessage("Rate limit exceeded"))
			continue
		}

		if len(data) > maxMessageSize {
			c.reply(ctx, errorMessage("Message too large"))
			continue
		}

		c.handle(ctx, data)
	}
}

func (c *Conn) handle(ctx context.Context, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(ctx, errorMessage("Invalid JSON"))
		return
	}

	quizID := int64(in.QuizID)

	switch in.Type {
	case TypeSubscribeQuiz:
		if quizID <= 0 {
			c.reply(ctx, errorMessage("quiz_id is required"))
			return
		}
		c.hub.Join(c, QuizTopic(quizID))
		c.reply(ctx, subscribed(quizID))

	case TypeUnsubscribeQuiz:
		if quizID <= 0 {
			c.reply(ctx, errorMessage("quiz_id is required"))
			return
		}
		c.hub.Leave(c.id, QuizTopic(quizID))
		c.reply(ctx, unsubscribed(quizID))

	default:
		c.reply(ctx, errorMessage("Unknown message type"))
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
