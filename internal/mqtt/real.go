package mqtt

import (
	"crypto/tls"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Conn is the subset of paho.Client the link uses.
type Conn interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Dialer creates a connection from client options without connecting.
type Dialer func(opts *paho.ClientOptions) Conn

// PahoDialer creates a real paho client.
func PahoDialer(opts *paho.ClientOptions) Conn {
	return paho.NewClient(opts)
}

const (
	keepAlive      = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// publishTimeout bounds the wait for one broker acknowledgement. The first
// timeout marks the session stalled, so a loop iteration waits at most
// this long however many messages it sends.
var publishTimeout = 2 * time.Second

// clientOptions builds paho options for s. The link owns reconnection, so
// paho's own retry is off. TLS trusts any broker certificate.
func clientOptions(s Settings, clientID, willTopic string) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.BrokerURL()).
		SetClientID(clientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetWill(willTopic, PayloadOffline, 1, true)
	if s.User != "" {
		opts.SetUsername(s.User)
		opts.SetPassword(s.Password)
	}
	if s.TLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return opts
}
