package link

import (
	"context"
	"sync"

	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
)

type publish struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

// fakeClient is an in-process pkgmqtt.Client.
type fakeClient struct {
	mu         sync.Mutex
	published  []publish
	handlers   map[string]pkgmqtt.MessageHandler
	publishErr error
	subscribed chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:   make(map[string]pkgmqtt.MessageHandler),
		subscribed: make(chan string, 4),
	}
}

func (f *fakeClient) Start(ctx context.Context) error       { return nil }
func (f *fakeClient) Disconnect(ctx context.Context)        {}
func (f *fakeClient) AwaitConnection(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool                     { return true }

func (f *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publish{topic: topic, qos: qos, retain: retain, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(ctx context.Context, topic string, qos int, handler pkgmqtt.MessageHandler) error {
	f.mu.Lock()
	f.handlers[topic] = handler
	f.mu.Unlock()
	f.subscribed <- topic
	return nil
}

func (f *fakeClient) Unsubscribe(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeClient) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h(context.Background(), topic, payload)
	}
	return ok
}
