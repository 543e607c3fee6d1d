package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// FakeToken is a controllable paho.Token.
type FakeToken struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewFakeToken returns a pending token.
func NewFakeToken() *FakeToken {
	return &FakeToken{done: make(chan struct{})}
}

// CompletedToken returns a token already completed with err.
func CompletedToken(err error) *FakeToken {
	t := NewFakeToken()
	t.Complete(err)
	return t
}

// Complete finishes the token. Later calls are ignored.
func (t *FakeToken) Complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *FakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *FakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *FakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *FakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// FakeMessage is a minimal paho.Message.
type FakeMessage struct {
	TopicName string
	Body      []byte
	Retain    bool
}

func (m *FakeMessage) Duplicate() bool   { return false }
func (m *FakeMessage) Qos() byte         { return 1 }
func (m *FakeMessage) Retained() bool    { return m.Retain }
func (m *FakeMessage) Topic() string     { return m.TopicName }
func (m *FakeMessage) MessageID() uint16 { return 0 }
func (m *FakeMessage) Payload() []byte   { return m.Body }
func (m *FakeMessage) Ack()              {}

// Published is one recorded publish.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeConn records traffic for test assertions.
type FakeConn struct {
	mu sync.Mutex

	// Opts are the options the link dialed with.
	Opts *paho.ClientOptions

	// ConnectToken is returned by Connect. Nil means an immediately
	// successful connect.
	ConnectToken *FakeToken

	// PublishError, if set, fails every publish.
	PublishError error

	// Stall leaves every publish and subscribe token pending, as a broker
	// that stops acknowledging after CONNACK would.
	Stall bool

	Messages      []Published
	Subscriptions map[string]paho.MessageHandler
	Disconnected  bool
	connected     bool
}

// NewFakeConn creates a FakeConn for opts.
func NewFakeConn(opts *paho.ClientOptions) *FakeConn {
	return &FakeConn{Opts: opts, Subscriptions: map[string]paho.MessageHandler{}}
}

func (c *FakeConn) Connect() paho.Token {
	tok := c.ConnectToken
	if tok == nil {
		tok = CompletedToken(nil)
	}
	go func() {
		<-tok.Done()
		c.mu.Lock()
		c.connected = tok.Error() == nil
		c.mu.Unlock()
	}()
	return tok
}

func (c *FakeConn) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Disconnected = true
	c.connected = false
}

func (c *FakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishError != nil {
		return CompletedToken(c.PublishError)
	}
	if c.Stall {
		return NewFakeToken()
	}
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = append([]byte(nil), p...)
	case string:
		b = []byte(p)
	}
	c.Messages = append(c.Messages, Published{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	return CompletedToken(nil)
}

func (c *FakeConn) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[topic] = callback
	if c.Stall {
		return NewFakeToken()
	}
	return CompletedToken(nil)
}

// Deliver simulates an inbound message on a subscribed topic. It reports
// false if nothing is subscribed.
func (c *FakeConn) Deliver(topic, payload string) bool {
	c.mu.Lock()
	h, ok := c.Subscriptions[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(nil, &FakeMessage{TopicName: topic, Body: []byte(payload)})
	return true
}

// Lose simulates the broker dropping the connection.
func (c *FakeConn) Lose(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	if c.Opts != nil && c.Opts.OnConnectionLost != nil {
		c.Opts.OnConnectionLost(nil, err)
	}
}

// Published returns a copy of the recorded messages.
func (c *FakeConn) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.Messages...)
}

// Last returns the most recent publish on topic.
func (c *FakeConn) Last(topic string) (Published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Topic == topic {
			return c.Messages[i], true
		}
	}
	return Published{}, false
}

// Reset clears recorded publishes.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = nil
}

// FakeDialer hands out FakeConns and keeps every one it created.
type FakeDialer struct {
	// Prepare, if set, configures each new conn before it is returned.
	Prepare func(c *FakeConn)
	Conns   []*FakeConn
}

// Dial implements Dialer.
func (d *FakeDialer) Dial(opts *paho.ClientOptions) Conn {
	c := NewFakeConn(opts)
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.Conns = append(d.Conns, c)
	return c
}

// Last returns the most recent conn, or nil.
func (d *FakeDialer) Last() *FakeConn {
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}
