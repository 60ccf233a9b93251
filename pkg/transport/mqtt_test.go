package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/tak-agent/pkg/mqtt"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type pendingToken struct{ done chan struct{} }

func (t *pendingToken) Wait() bool                     { <-t.done; return true }
func (t *pendingToken) WaitTimeout(time.Duration) bool { return false }
func (t *pendingToken) Done() <-chan struct{}          { return t.done }
func (t *pendingToken) Error() error                   { return nil }

type fakeMessage struct{ payload []byte }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "cot/in" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeBroker struct {
	mu           sync.Mutex
	opts         *pahomqtt.ClientOptions
	connectErr   error
	publishTok   pahomqtt.Token
	published    []string
	subscribed   string
	onMessage    pahomqtt.MessageHandler
	disconnected bool
}

func (b *fakeBroker) Connect() pahomqtt.Token { return newDoneToken(b.connectErr) }

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, topic+":"+string(payload.([]byte)))
	if b.publishTok != nil {
		return b.publishTok
	}
	return newDoneToken(nil)
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	b.subscribed = topic
	b.onMessage = callback
	return newDoneToken(nil)
}

func (b *fakeBroker) Unsubscribe(topics ...string) pahomqtt.Token { return newDoneToken(nil) }

func (b *fakeBroker) Disconnect(quiesce uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
}

func newTestMQTTDialer(b *fakeBroker) *MQTTDialer {
	d := NewMQTTDialer(nil, "tak-agent", "cot/out", "cot/in", 1)
	d.newClient = func(o *pahomqtt.ClientOptions) mqtt.MQTTClient {
		b.opts = o
		return b
	}
	return d
}

func TestMQTTDialer_PublishAndReceive(t *testing.T) {
	b := &fakeBroker{}
	h := newRecordingHandler()

	conn, err := newTestMQTTDialer(b).Dial(context.Background(), "tcp://broker:1883", h)
	require.NoError(t, err)

	assert.False(t, b.opts.AutoReconnect)
	assert.Equal(t, "cot/in", b.subscribed)

	require.NoError(t, conn.Send(context.Background(), []byte("<event/>")))
	assert.Equal(t, []string{"cot/out:<event/>"}, b.published)

	b.onMessage(nil, fakeMessage{payload: []byte("<event uid=\"x\"/>")})
	require.Len(t, h.received(), 1)
	assert.Equal(t, []byte("<event uid=\"x\"/>"), h.received()[0])

	require.NoError(t, conn.Close())
	assert.NoError(t, h.waitClosed(t))
	assert.True(t, b.disconnected)
	assert.ErrorIs(t, conn.Send(context.Background(), []byte("late")), ErrConnClosed)
}

func TestMQTTDialer_ConnectionLost(t *testing.T) {
	b := &fakeBroker{}
	h := newRecordingHandler()

	_, err := newTestMQTTDialer(b).Dial(context.Background(), "tcp://broker:1883", h)
	require.NoError(t, err)

	lost := errors.New("pingresp not received")
	b.opts.OnConnectionLost(nil, lost)
	assert.ErrorIs(t, h.waitClosed(t), lost)
}

func TestMQTTDialer_ConnectFailure(t *testing.T) {
	b := &fakeBroker{connectErr: errors.New("not authorized")}

	_, err := newTestMQTTDialer(b).Dial(context.Background(), "tcp://broker:1883", newRecordingHandler())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.True(t, b.disconnected)
}

func TestMQTTConn_SendHonoursContext(t *testing.T) {
	b := &fakeBroker{publishTok: &pendingToken{done: make(chan struct{})}}

	conn, err := newTestMQTTDialer(b).Dial(context.Background(), "tcp://broker:1883", newRecordingHandler())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, conn.Send(ctx, []byte("<event/>")), context.DeadlineExceeded)
}
