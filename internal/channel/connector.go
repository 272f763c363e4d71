package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/config"
	"github.com/spec-kit/intake-pipeline/internal/observability"
	apperrors "github.com/spec-kit/intake-pipeline/pkg/errorutil"
)

// ConnState is the connector's connection state.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
)

// StatusLoggedOut is the gateway close code signalling an irrecoverable
// logout. The connector stays down and requires re-pairing.
const StatusLoggedOut = websocket.StatusCode(4401)

// Redis keys holding pairing artifacts and cached crypto session material.
const (
	credsKey   = "channel:creds"
	keysKey    = "channel:keys"
	pairingKey = "channel:pairing"
	qrKey      = "channel:qr"

	msgDedupPrefix = "channel:msg:"
	msgDedupTTL    = 12 * time.Hour
)

// Sender is the outbound surface consumed by the workers.
type Sender interface {
	SendMessage(ctx context.Context, identity, text string) error
}

// Connector maintains the long-lived duplex connection to the chat gateway.
// Reconnection attempts are serialized inside Run; inbound messages are
// deduplicated by network id and emitted on Events.
type Connector struct {
	cfg     config.GatewayConfig
	redis   *redis.Client
	logger  *zap.Logger
	metrics *observability.Metrics

	events chan InboundMessage

	mu        sync.Mutex
	state     ConnState
	conn      *websocket.Conn
	integrity int
	pairing   map[string]chan string
}

// NewConnector builds a connector. Call Run to start the connection loop.
func NewConnector(cfg config.GatewayConfig, redisClient *redis.Client, metrics *observability.Metrics, logger *zap.Logger) *Connector {
	return &Connector{
		cfg:     cfg,
		redis:   redisClient,
		logger:  logger.With(zap.String("component", "channel")),
		metrics: metrics,
		events:  make(chan InboundMessage, 256),
		state:   StateDisconnected,
		pairing: make(map[string]chan string),
	}
}

// Events returns the stream of inbound messages.
func (c *Connector) Events() <-chan InboundMessage {
	return c.events
}

// State returns the current connection state.
func (c *Connector) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the connection loop until ctx is cancelled. A close tagged as a
// logout keeps the connector down and purges pairing artifacts; any other
// close schedules a redial after the fixed delay.
func (c *Connector) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return
		}

		c.setState(StateConnecting, nil)
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("gateway dial failed", zap.Error(err))
			c.setState(StateDisconnected, nil)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.setState(StateConnected, conn)
		c.resetIntegrity()
		c.logger.Info("gateway connected")

		err = c.readLoop(ctx, conn)
		c.setState(StateDisconnected, nil)

		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}

		if IsLoggedOut(err) {
			c.logger.Error("gateway session logged out; re-pairing required")
			c.purgePairingArtifacts(ctx)
			return
		}

		c.logger.Warn("gateway connection lost; reconnecting",
			zap.Error(err), zap.Duration("delay", c.cfg.ReconnectDelay()))
		c.metrics.Inc(observability.MetricChannelReconnect)
		if !c.sleep(ctx) {
			return
		}
	}
}

// IsLoggedOut reports whether the close error signals an irrecoverable logout.
func IsLoggedOut(err error) bool {
	return websocket.CloseStatus(err) == StatusLoggedOut
}

// SendMessage writes one outbound text message. Fails with a TransportError
// when the connector is not connected.
func (c *Connector) SendMessage(ctx context.Context, identity, text string) error {
	frame := gatewayFrame{Type: frameSend, To: identity, Text: text}
	if err := c.writeFrame(ctx, frame); err != nil {
		return err
	}
	c.metrics.Inc(observability.MetricChannelSends)
	return nil
}

// RequestPairingCode asks the gateway for an out-of-band pairing code for
// the given number and waits for the reply.
func (c *Connector) RequestPairingCode(ctx context.Context, number string) (string, error) {
	requestID := uuid.NewString()
	reply := make(chan string, 1)

	c.mu.Lock()
	c.pairing[requestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pairing, requestID)
		c.mu.Unlock()
	}()

	frame := gatewayFrame{Type: frameRequestPairing, ID: requestID, Number: number}
	if err := c.writeFrame(ctx, frame); err != nil {
		return "", err
	}

	select {
	case code := <-reply:
		return code, nil
	case <-time.After(c.cfg.PairingTimeout()):
		return "", apperrors.NewTransportError("pairing code request timed out", nil)
	case <-ctx.Done():
		return "", apperrors.NewTransportError("pairing code request cancelled", ctx.Err())
	}
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame gatewayFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("unparseable gateway frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case frameMessage:
			c.handleMessage(ctx, frame)
		case frameDecryptFailed:
			c.handleIntegrityFailure(ctx)
		case framePairingCode:
			c.deliverPairingCode(frame)
		default:
			c.logger.Debug("ignoring gateway frame", zap.String("type", frame.Type))
		}
	}
}

func (c *Connector) handleMessage(ctx context.Context, frame gatewayFrame) {
	text := extractText(frame.Message)
	if text == "" {
		// Media without caption, reactions and the like.
		return
	}
	if frame.From == "" || frame.ID == "" {
		return
	}

	// Gateway delivery is at-least-once; drop network ids seen before.
	fresh, err := c.redis.SetNX(ctx, msgDedupPrefix+frame.ID, 1, msgDedupTTL).Result()
	if err != nil {
		c.logger.Warn("message dedup check failed", zap.Error(err))
	} else if !fresh {
		return
	}

	ts := time.Now()
	if frame.Timestamp > 0 {
		ts = time.Unix(frame.Timestamp, 0)
	}

	msg := InboundMessage{From: frame.From, PushName: frame.PushName, Text: text, NetworkID: frame.ID, Timestamp: ts}
	select {
	case c.events <- msg:
	default:
		c.logger.Error("inbound event buffer full; dropping message",
			zap.String("network_id", frame.ID))
	}
}

// handleIntegrityFailure counts decryption failures. At the threshold the
// cached crypto session material is purged so the next connection
// renegotiates keys, and the counter resets.
func (c *Connector) handleIntegrityFailure(ctx context.Context) {
	c.mu.Lock()
	c.integrity++
	count := c.integrity
	purge := count >= c.cfg.IntegrityThreshold
	if purge {
		c.integrity = 0
	}
	c.mu.Unlock()

	c.logger.Warn("integrity failure", zap.Int("count", count))
	if purge {
		c.logger.Error("integrity threshold reached; purging session material")
		if err := c.redis.Del(ctx, credsKey, keysKey).Err(); err != nil {
			c.logger.Error("purge session material", zap.Error(err))
		}
	}
}

func (c *Connector) deliverPairingCode(frame gatewayFrame) {
	c.mu.Lock()
	reply, ok := c.pairing[frame.ID]
	c.mu.Unlock()
	if ok {
		select {
		case reply <- frame.Code:
		default:
		}
	}
}

func (c *Connector) writeFrame(ctx context.Context, frame gatewayFrame) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return apperrors.NewTransportError("gateway not connected", nil)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return apperrors.NewTransportError("marshal frame", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return apperrors.NewTransportError("write frame", err)
	}
	return nil
}

func (c *Connector) purgePairingArtifacts(ctx context.Context) {
	if err := c.redis.Del(ctx, credsKey, keysKey, pairingKey, qrKey).Err(); err != nil &&
		!errors.Is(err, context.Canceled) {
		c.logger.Error("purge pairing artifacts", zap.Error(err))
	}
}

func (c *Connector) setState(state ConnState, conn *websocket.Conn) {
	c.mu.Lock()
	c.state = state
	c.conn = conn
	c.mu.Unlock()
}

func (c *Connector) resetIntegrity() {
	c.mu.Lock()
	c.integrity = 0
	c.mu.Unlock()
}

func (c *Connector) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.ReconnectDelay()):
		return true
	}
}
