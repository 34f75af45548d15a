package pubsub

// PubSub is a fire-and-forget notification channel. The engine only uses
// it to nudge dispatchers; durable state lives in the document store.
type PubSub interface {
	Publish(topic string, data []byte) error
	Subscribe(topic string, cb func([]byte)) error
	Close() error
}
