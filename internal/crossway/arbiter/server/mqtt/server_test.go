package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/crossway/internal/crossway/arbiter"
	"github.com/autopeer-io/crossway/internal/crossway/codec"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
)

type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]pkgmqtt.MessageHandler
	published map[string][][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:  make(map[string]pkgmqtt.MessageHandler),
		published: make(map[string][][]byte),
	}
}

func (f *fakeClient) Start(context.Context) error           { return nil }
func (f *fakeClient) Disconnect(context.Context)            {}
func (f *fakeClient) AwaitConnection(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool                     { return true }

func (f *fakeClient) Publish(_ context.Context, topic string, _ int, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, topic string, _ int, handler pkgmqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeClient) lastGrant(t *testing.T, id string) *core.GrantAccess {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published["crossway/v1/grant/"+id]
	if len(msgs) == 0 {
		t.Fatalf("no grant published for %s", id)
	}
	msg, err := codec.Decode(msgs[len(msgs)-1])
	if err != nil {
		t.Fatal(err)
	}
	g, ok := msg.(*core.GrantAccess)
	if !ok {
		t.Fatalf("published %T on the grant topic", msg)
	}
	return g
}

func (f *fakeClient) grants(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published["crossway/v1/grant/"+id])
}

func encode(t *testing.T, msg core.Message) []byte {
	t.Helper()
	b, err := codec.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func startServer(t *testing.T) (*Server, *fakeClient, *arbiter.Arbiter) {
	t.Helper()
	client := newFakeClient()
	clk := clocktesting.NewFakeClock(time.Unix(0, 0))
	a := arbiter.New(arbiter.Sequential{}, clk, log.NewNopLogger())

	readyCh := make(chan bool, 2)
	s := NewServer(client, topic.NewBuilder("crossway/v1"), "crossway-arbiter", a, clk, func(ok bool) { readyCh <- ok })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case ok := <-readyCh:
		if !ok {
			t.Fatal("server reported not ready")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}
	return s, client, a
}

func TestSubscriptions(t *testing.T) {
	_, client, _ := startServer(t)

	for _, want := range []string{
		"$share/crossway-arbiter/crossway/v1/request/+",
		"$share/crossway-arbiter/crossway/v1/exiting/+",
		"crossway/v1/online/+",
	} {
		if _, ok := client.handlers[want]; !ok {
			t.Errorf("not subscribed to %s", want)
		}
	}
}

func TestRequestExitFlow(t *testing.T) {
	s, client, a := startServer(t)
	ctx := context.Background()

	s.handleRequest(ctx, "crossway/v1/request/v1", encode(t, &core.RequestAccess{VehicleID: "v1", RequestTime: time.Unix(1, 0)}))
	s.handleRequest(ctx, "crossway/v1/request/v2", encode(t, &core.RequestAccess{VehicleID: "v2", RequestTime: time.Unix(2, 0)}))

	if client.grants("v1") != 1 || client.grants("v2") != 0 {
		t.Fatalf("grants after requests: v1=%d v2=%d", client.grants("v1"), client.grants("v2"))
	}

	// Retry from v1 is answered again.
	s.handleRequest(ctx, "crossway/v1/request/v1", encode(t, &core.RequestAccess{VehicleID: "v1", RequestTime: time.Unix(1, 0)}))
	if client.grants("v1") != 2 {
		t.Errorf("retry not re-granted, grants = %d", client.grants("v1"))
	}

	s.handleExiting(ctx, "crossway/v1/exiting/v1", encode(t, &core.Exiting{VehicleID: "v1"}))
	if client.grants("v2") != 1 {
		t.Errorf("v2 not granted after v1 exit")
	}

	payload := client.published["crossway/v1/grant/v2"][0]
	msg, err := codec.Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if g, ok := msg.(*core.GrantAccess); !ok || g.VehicleID != "v2" {
		t.Errorf("grant payload = %#v", msg)
	}

	if s := a.Snapshot(); len(s.Inside) != 1 || s.Inside[0].VehicleID != "v2" {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestDropsMalformedInput(t *testing.T) {
	s, client, a := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		topic   string
		payload []byte
	}{
		{name: "garbage", topic: "crossway/v1/request/v1", payload: []byte{0xff}},
		{name: "wrong kind", topic: "crossway/v1/request/v1", payload: encode(t, &core.Exiting{VehicleID: "v1"})},
		{name: "spoofed id", topic: "crossway/v1/request/v1", payload: encode(t, &core.RequestAccess{VehicleID: "v9"})},
		{name: "bad topic", topic: "crossway/v1/request/v1/x", payload: encode(t, &core.RequestAccess{VehicleID: "v1"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.handleRequest(ctx, tt.topic, tt.payload)
		})
	}

	if n := len(a.Snapshot().Inside); n != 0 {
		t.Errorf("%d vehicles admitted from malformed input", n)
	}
	if client.grants("v1")+client.grants("v9") != 0 {
		t.Error("grant published for malformed input")
	}
}

func TestOfflineDropsWaiter(t *testing.T) {
	s, client, a := startServer(t)
	ctx := context.Background()

	s.handleRequest(ctx, "crossway/v1/request/v1", encode(t, &core.RequestAccess{VehicleID: "v1", RequestTime: time.Unix(1, 0)}))
	s.handleRequest(ctx, "crossway/v1/request/v2", encode(t, &core.RequestAccess{VehicleID: "v2", RequestTime: time.Unix(2, 0)}))
	s.handleOnline(ctx, "crossway/v1/online/v2", []byte("0"))

	if n := len(a.Snapshot().Queue); n != 0 {
		t.Errorf("queue length %d after waiter went offline", n)
	}
	s.handleOnline(ctx, "crossway/v1/online/v1", []byte("0"))
	if n := len(a.Snapshot().Inside); n != 1 {
		t.Errorf("offline occupant removed, inside = %d", n)
	}
	if client.grants("v2") != 0 {
		t.Error("offline vehicle granted")
	}
}

func TestGrantCarriesRequestTime(t *testing.T) {
	s, client, _ := startServer(t)
	ctx := context.Background()

	first := time.Unix(1, 500)
	s.handleRequest(ctx, "crossway/v1/request/v1", encode(t, &core.RequestAccess{VehicleID: "v1", RequestTime: first}))
	if g := client.lastGrant(t, "v1"); g.VehicleID != "v1" || !g.RequestTime.Equal(first) {
		t.Fatalf("grant = %+v, want request time %v", g, first)
	}

	// A retry of the same episode is answered for that episode.
	s.handleRequest(ctx, "crossway/v1/request/v1", encode(t, &core.RequestAccess{VehicleID: "v1", RequestTime: first}))
	if g := client.lastGrant(t, "v1"); !g.RequestTime.Equal(first) {
		t.Errorf("repeated grant request time = %v, want %v", g.RequestTime, first)
	}
}
