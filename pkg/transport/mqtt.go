package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/benmeehan/tak-agent/pkg/file"
	"github.com/benmeehan/tak-agent/pkg/mqtt"
)

// ErrConnClosed is returned by Send after the connection has been closed.
var ErrConnClosed = errors.New("connection closed")

// MQTTDialer carries CoT over an MQTT broker: outbound events are published
// to PublishTopic and inbound events are read from SubscribeTopic.
type MQTTDialer struct {
	FileClient     file.FileOperations
	ClientID       string
	PublishTopic   string
	SubscribeTopic string
	QoS            byte
	CACertificate  string
	ConnectTimeout time.Duration

	// newClient is replaced in tests.
	newClient func(*pahomqtt.ClientOptions) mqtt.MQTTClient
}

// NewMQTTDialer returns a dialer publishing and subscribing on the given topics.
func NewMQTTDialer(fileClient file.FileOperations, clientID, publishTopic, subscribeTopic string, qos byte) *MQTTDialer {
	return &MQTTDialer{
		FileClient:     fileClient,
		ClientID:       clientID,
		PublishTopic:   publishTopic,
		SubscribeTopic: subscribeTopic,
		QoS:            qos,
		ConnectTimeout: defaultHandshakeTimeout,
	}
}

// Dial connects to the broker and subscribes to the inbound topic. Paho's own
// reconnect logic stays disabled; loss of the broker connection is reported
// through OnClose.
func (d *MQTTDialer) Dial(ctx context.Context, server string, h Handler) (Conn, error) {
	c := &mqttConn{
		topic:   d.PublishTopic,
		qos:     d.QoS,
		handler: h,
	}

	opts, err := mqtt.NewClientOptions(d.FileClient, mqtt.Options{
		Broker:         server,
		ClientID:       fmt.Sprintf("%s-%s", d.ClientID, uuid.New().String()),
		CACertificate:  d.CACertificate,
		AutoReconnect:  false,
		ConnectTimeout: d.ConnectTimeout,
		OnConnectionLost: func(_ pahomqtt.Client, err error) {
			c.closed(err)
		},
	})
	if err != nil {
		return nil, err
	}

	newClient := d.newClient
	if newClient == nil {
		newClient = func(o *pahomqtt.ClientOptions) mqtt.MQTTClient { return pahomqtt.NewClient(o) }
	}
	c.client = newClient(opts)

	if err := waitToken(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	if d.SubscribeTopic != "" {
		tok := c.client.Subscribe(d.SubscribeTopic, d.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			h.OnMessage(msg.Payload())
		})
		if err := waitToken(ctx, tok); err != nil {
			c.client.Disconnect(0)
			return nil, fmt.Errorf("failed to subscribe to %s: %w", d.SubscribeTopic, err)
		}
	}

	return c, nil
}

type mqttConn struct {
	client    mqtt.MQTTClient
	topic     string
	qos       byte
	handler   Handler
	closing   atomic.Bool
	closeOnce sync.Once
}

// Send publishes payload and waits for the broker acknowledgement.
func (c *mqttConn) Send(ctx context.Context, payload []byte) error {
	if c.closing.Load() {
		return ErrConnClosed
	}
	return waitToken(ctx, c.client.Publish(c.topic, c.qos, false, payload))
}

// Close disconnects from the broker and reports OnClose(nil) asynchronously.
func (c *mqttConn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.client.Disconnect(250)
	go c.closed(nil)
	return nil
}

func (c *mqttConn) closed(err error) {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		c.handler.OnClose(err)
	})
}

// waitToken blocks until tok completes or ctx is done.
func waitToken(ctx context.Context, tok pahomqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
