// Package mqttlink bridges the wireless hub link over MQTT topics, for
// hubs attached to a remote gateway publishing through a broker.
//
// Topic convention under a prefix:
//
//	<prefix>/tx     client -> hub bytes
//	<prefix>/rx     hub -> client notification bytes
//	<prefix>/status hub -> client status bytes
package mqttlink

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/link"
)

// Bridge implements link.Transport over a broker connection.
type Bridge struct {
	client       paho.Client
	prefix       string
	notification chan []byte
	status       chan []byte
	disconnected chan struct{}
	lostOnce     sync.Once
}

var _ link.Transport = (*Bridge)(nil)

// ClientOptionsFromURL creates paho options from a broker URL of the
// form mqtt://host:port/prefix. The client id defaults to the machine
// id unless the URL carries a client-id query parameter.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	server := u.Scheme
	if server == "" || server == "mqtt" {
		server = "tcp"
	}
	server += "://" + u.Host

	prefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	clientID := u.Query().Get("client-id")
	if clientID == "" {
		if id, err := machineid.ID(); err == nil {
			clientID = "hublink-" + id
		}
	}
	if clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, prefix, nil
}

// Dial connects to the broker and subscribes the hub streams.
func Dial(serverURL string) (*Bridge, error) {
	opts, prefix, err := ClientOptionsFromURL(serverURL)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		prefix:       prefix,
		notification: make(chan []byte, 16),
		status:       make(chan []byte, 16),
		disconnected: make(chan struct{}),
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		glog.Warningf("broker connection lost: %v", err)
		b.lostOnce.Do(func() { close(b.disconnected) })
	})
	b.client = paho.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if err := b.sub(b.topic("rx"), b.notification); err != nil {
		b.client.Disconnect(0)
		return nil, err
	}
	if err := b.sub(b.topic("status"), b.status); err != nil {
		b.client.Disconnect(0)
		return nil, err
	}
	return b, nil
}

func (b *Bridge) topic(suffix string) string {
	if b.prefix == "" {
		return suffix
	}
	return b.prefix + "/" + suffix
}

func (b *Bridge) sub(topic string, ch chan []byte) error {
	token := b.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		ch <- msg.Payload()
	})
	token.Wait()
	return token.Error()
}

// Write implements link.Transport. The broker QoS level stands in for
// the link-level acknowledgement: acked writes publish at QoS 1 and
// wait for the broker, bare writes publish at QoS 0.
func (b *Bridge) Write(ctx context.Context, data []byte, ack bool) error {
	qos := byte(0)
	if ack {
		qos = 1
	}
	token := b.client.Publish(b.topic("tx"), qos, false, data)
	if !ack {
		return nil
	}
	token.Wait()
	return token.Error()
}

// Notifications implements link.Transport.
func (b *Bridge) Notifications() <-chan []byte {
	return b.notification
}

// Status implements link.Transport.
func (b *Bridge) Status() <-chan []byte {
	return b.status
}

// Disconnected implements link.Transport.
func (b *Bridge) Disconnected() <-chan struct{} {
	return b.disconnected
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
