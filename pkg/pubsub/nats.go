package pubsub

import (
	"github.com/nats-io/nats.go"
)

type natsPubSub struct {
	client *nats.Conn
}

// NewNATS connects to a NATS server. An empty url means the default local
// server.
func NewNATS(url string) (PubSub, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	return &natsPubSub{client: nc}, nil
}

func (n *natsPubSub) Publish(topic string, data []byte) error {
	return n.client.Publish(topic, data)
}

func (n *natsPubSub) Subscribe(topic string, cb func([]byte)) error {
	_, err := n.client.Subscribe(topic, func(msg *nats.Msg) {
		cb(msg.Data)
	})

	return err
}

func (n *natsPubSub) Close() error {
	n.client.Close()
	return nil
}
