// Package tak implements the CoT position-reporting client: a persistent
// socket to a TAK server, a periodic update loop, and reconnection with
// exponential backoff.
package tak

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/metrics"
	"github.com/benmeehan/tak-agent/pkg/cot"
	"github.com/benmeehan/tak-agent/pkg/location"
	"github.com/benmeehan/tak-agent/pkg/transport"
)

// ConnectionState is the socket lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

var allStates = []string{
	string(StateDisconnected), string(StateConnecting), string(StateConnected), string(StateError),
}

// PositionSampler produces the positions the client reports.
type PositionSampler interface {
	Sample(ctx context.Context) (location.GeoPosition, error)
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func defaultScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option customizes a Client.
type Option func(*Client)

// WithScheduler replaces the timer used for reconnect backoff.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.schedule = s }
}

// WithClock replaces the clock used for UID generation and connection age.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMessageHandler receives every inbound payload from the server.
func WithMessageHandler(h func(payload []byte)) Option {
	return func(c *Client) { c.onMessage = h }
}

// WithMetrics instruments the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLowBatteryHook is called once each time the battery crosses the low threshold.
func WithLowBatteryHook(f func(level int)) Option {
	return func(c *Client) { c.onLowBattery = f }
}

// Snapshot is a read-only copy of the client state.
type Snapshot struct {
	UID          string
	Callsign     string
	State        ConnectionState
	RetryCount   int
	Exhausted    bool
	Battery      int
	HistoryLen   int
	LastPosition *location.GeoPosition
	Course       float64
	Speed        float64
}

type socketEvent int

const (
	eventOpen socketEvent = iota
	eventError
	eventClose
)

func (e socketEvent) String() string {
	switch e {
	case eventOpen:
		return "open"
	case eventError:
		return "error"
	default:
		return "close"
	}
}

// Client reports positions to a single TAK server.
type Client struct {
	cfg          ClientConfig
	dialer       transport.Dialer
	source       PositionSampler
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	schedule     Scheduler
	now          func() time.Time
	onMessage    func([]byte)
	onLowBattery func(int)
	health       *Health

	mu         sync.Mutex
	state      ConnectionState
	conn       transport.Conn
	gen        uint64 // bumped on every dial and on Disconnect; older sockets are stale
	dialing    bool
	wanted     bool
	openedAt   time.Time
	retryCount int
	exhausted  bool
	reconnect  Timer
	reconnSeq  uint64
	history    *PositionHistory
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup

	busy atomic.Bool
}

// NewClient validates cfg, fills unset optional fields with defaults and
// returns a disconnected client.
func NewClient(cfg ClientConfig, dialer transport.Dialer, source PositionSampler, logger zerolog.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		dialer:   dialer,
		source:   source,
		logger:   logger,
		schedule: defaultScheduler,
		now:      time.Now,
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}

	if dialer == nil || source == nil {
		return nil, fmt.Errorf("%w: dialer and position source are required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults(c.now())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c.cfg = cfg
	c.history = NewPositionHistory(cfg.HistorySize, cfg.DuplicateThreshold)
	c.health = NewHealth(logger, c.metrics, c.onLowBattery)
	c.metrics.SetConnectionState(string(StateDisconnected), allStates...)
	return c, nil
}

// Config returns the effective configuration, including a generated UID.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Connect opens the socket and starts the update loop. It returns nil once
// the socket is open. A failed dial returns ErrConnectionFailed and hands
// over to the reconnect policy. Calling Connect resets the retry counter.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.wanted = true
	c.retryCount = 0
	c.exhausted = false
	c.cancelReconnectLocked()
	if c.lifeCtx == nil {
		c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	}
	c.startLoopLocked()
	c.mu.Unlock()

	return c.dial(ctx)
}

// Disconnect closes the socket, cancels any pending reconnect or in-flight
// dial and stops the update loop. The client does not reconnect afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.wanted = false
	c.gen++
	c.dialing = false
	c.cancelReconnectLocked()
	if c.lifeCancel != nil {
		c.lifeCancel()
		c.lifeCtx, c.lifeCancel = nil, nil
	}
	c.stopLoopLocked()
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.loopWG.Wait()
	c.logger.Info().Str("server", c.cfg.Server).Msg("Disconnected from TAK server")
	return err
}

// dial opens a socket for a new connection generation and feeds the result
// into the state machine.
func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	if !c.wanted {
		c.mu.Unlock()
		return ErrClientStopped
	}
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	c.dialing = true
	c.setStateLocked(StateConnecting)
	lifeCtx := c.lifeCtx
	c.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	stop := context.AfterFunc(lifeCtx, cancel)
	h := &connHandler{client: c, gen: gen, ready: make(chan struct{})}

	c.logger.Debug().Str("server", c.cfg.Server).Uint64("generation", gen).Msg("Dialing TAK server")
	conn, err := c.dialer.Dial(dctx, c.cfg.Server, h)
	stop()
	cancel()

	if err != nil {
		h.abandoned.Store(true)
		close(h.ready)
		c.dispatch(gen, eventError, nil, err)
		c.dispatch(gen, eventClose, nil, err)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ok := c.dispatch(gen, eventOpen, conn, nil)
	close(h.ready)
	if !ok {
		return ErrClientStopped
	}
	return nil
}

// dispatch applies one socket event to the state machine. It reports false
// when the event was ignored because its socket is no longer current.
func (c *Client) dispatch(gen uint64, ev socketEvent, conn transport.Conn, cause error) bool {
	c.mu.Lock()
	toClose, applied := c.transitionLocked(gen, ev, conn, cause)
	c.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}
	return applied
}

// transitionLocked is the transition table. It returns a socket the caller
// must close once the lock is released.
func (c *Client) transitionLocked(gen uint64, ev socketEvent, conn transport.Conn, cause error) (transport.Conn, bool) {
	if gen != c.gen {
		c.logger.Debug().Stringer("event", ev).Uint64("generation", gen).Msg("Ignoring event from stale socket")
		return conn, false
	}

	switch ev {
	case eventOpen:
		c.dialing = false
		if !c.wanted {
			c.setStateLocked(StateDisconnected)
			return conn, false
		}
		c.conn = conn
		c.openedAt = c.now()
		if c.cfg.Reconnect.StableAfter < 0 {
			c.retryCount = 0
		}
		c.setStateLocked(StateConnected)
		c.logger.Info().Str("server", c.cfg.Server).Str("uid", c.cfg.UID).Msg("Connected to TAK server")

	case eventError:
		c.dialing = false
		c.setStateLocked(StateError)
		c.logger.Warn().Err(cause).Str("server", c.cfg.Server).Msg("TAK socket error")
		return c.conn, true

	case eventClose:
		c.dialing = false
		if c.conn != nil {
			if c.cfg.Reconnect.StableAfter > 0 && c.now().Sub(c.openedAt) >= c.cfg.Reconnect.StableAfter {
				c.retryCount = 0
			}
			c.conn = nil
		}
		c.setStateLocked(StateDisconnected)
		c.logger.Info().Err(cause).Str("server", c.cfg.Server).Msg("TAK socket closed")
		if c.wanted {
			c.scheduleReconnectLocked()
		}
	}
	return nil, true
}

// scheduleReconnectLocked arms the backoff timer, or gives up once the retry
// budget is spent.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}
	if c.retryCount >= c.cfg.Reconnect.MaxRetries {
		c.exhausted = true
		c.metrics.ReconnectExhausted()
		c.logger.Error().Err(ErrMaxRetriesExceeded).
			Int("retries", c.retryCount).
			Str("server", c.cfg.Server).
			Msg("Giving up on TAK server")
		c.stopLoopLocked()
		return
	}

	delay := c.cfg.Reconnect.Delay(c.retryCount)
	c.reconnSeq++
	seq := c.reconnSeq
	c.reconnect = c.schedule(delay, func() { c.fireReconnect(seq) })
	c.metrics.ReconnectScheduled()
	c.logger.Info().Dur("delay", delay).Int("retry", c.retryCount+1).Msg("Reconnect scheduled")
}

func (c *Client) fireReconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.reconnSeq || c.reconnect == nil || !c.wanted {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.retryCount++
	c.mu.Unlock()

	if err := c.dial(context.Background()); err != nil {
		c.logger.Warn().Err(err).Msg("Reconnect attempt failed")
	}
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnSeq++
}

func (c *Client) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.SetConnectionState(string(s), allStates...)
}

func (c *Client) startLoopLocked() {
	if c.loopCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.loopWG.Add(1)
	go func() {
		defer c.loopWG.Done()
		c.runUpdateLoop(ctx)
	}()
}

// stopLoopLocked cancels the update loop without waiting for it.
func (c *Client) stopLoopLocked() {
	if c.loopCancel != nil {
		c.loopCancel()
		c.loopCancel = nil
	}
}

// runUpdateLoop sends a position update on every tick until ctx is canceled.
func (c *Client) runUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := c.SendPositionUpdate(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrNotConnected), errors.Is(err, ErrDuplicatePosition), errors.Is(err, ErrUpdateInFlight):
				c.logger.Debug().Err(err).Msg("Position update skipped")
			default:
				c.logger.Warn().Err(err).Msg("Position update failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendPositionUpdate samples, encodes and sends one position. At most one
// update runs at a time. The position is added to the history only after a
// successful send.
func (c *Client) SendPositionUpdate(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		c.metrics.UpdateSkipped(metrics.SkipInFlight)
		return ErrUpdateInFlight
	}
	defer c.busy.Store(false)

	start := time.Now()

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if !connected {
		c.metrics.UpdateSkipped(metrics.SkipNotConnected)
		return ErrNotConnected
	}

	pos, err := c.source.Sample(ctx)
	if err != nil {
		c.metrics.UpdateSkipped(metrics.SkipUnavailable)
		if errors.Is(err, ErrPositionUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}

	c.mu.Lock()
	duplicate := c.history.IsDuplicate(pos)
	course, speed := c.history.MotionTo(pos)
	c.mu.Unlock()
	if duplicate {
		c.metrics.UpdateSkipped(metrics.SkipDuplicate)
		return ErrDuplicatePosition
	}

	payload := cot.Encode(cot.Event{
		UID:      c.cfg.UID,
		Callsign: c.cfg.Callsign,
		Group:    string(c.cfg.Group),
		Lat:      pos.Lat,
		Lon:      pos.Lon,
		HAE:      pos.HAE,
		Course:   course,
		Speed:    speed,
		Battery:  c.health.Battery(),
		Time:     time.UnixMilli(pos.Timestamp),
	})

	if err := conn.Send(ctx, []byte(payload)); err != nil {
		c.metrics.SendFailed()
		level := c.health.OnSendFailure()
		return fmt.Errorf("%w: %v (battery %d)", ErrSendFailed, err, level)
	}

	c.mu.Lock()
	c.history.Append(pos)
	c.mu.Unlock()

	c.metrics.UpdateSent(time.Since(start))
	c.logger.Debug().
		Float64("lat", pos.Lat).
		Float64("lon", pos.Lon).
		Float64("course", course).
		Float64("speed", speed).
		Msg("Position update sent")
	return nil
}

// Snapshot returns a copy of the client state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		UID:        c.cfg.UID,
		Callsign:   c.cfg.Callsign,
		State:      c.state,
		RetryCount: c.retryCount,
		Exhausted:  c.exhausted,
		Battery:    c.health.Battery(),
		HistoryLen: c.history.Len(),
		Course:     c.history.BearingDegrees(),
		Speed:      c.history.SpeedMetersPerSecond(),
	}
	if last, ok := c.history.Last(); ok {
		s.LastPosition = &last
	}
	return s
}

// History returns a copy of the sent positions, oldest first.
func (c *Client) History() []location.GeoPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Entries()
}

// connHandler forwards transport events for one connection generation.
type connHandler struct {
	client    *Client
	gen       uint64
	ready     chan struct{} // closed once Dial has returned and its result was applied
	abandoned atomic.Bool   // Dial failed; the dial path already reported the close
}

func (h *connHandler) OnMessage(payload []byte) {
	<-h.ready
	if h.abandoned.Load() {
		return
	}
	if h.client.onMessage != nil {
		h.client.onMessage(payload)
	}
}

func (h *connHandler) OnClose(err error) {
	<-h.ready
	if h.abandoned.Load() {
		return
	}
	if err != nil {
		h.client.dispatch(h.gen, eventError, nil, err)
	}
	h.client.dispatch(h.gen, eventClose, nil, err)
}
