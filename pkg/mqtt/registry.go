package mqtt

import (
	"sort"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
)

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// registry keeps the handlers by filter so they can be routed to and
// replayed on every new session.
type registry struct {
	mu   sync.RWMutex
	subs map[string]subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]subscription)}
}

func (r *registry) put(s subscription) {
	r.mu.Lock()
	r.subs[s.filter] = s
	r.mu.Unlock()
}

func (r *registry) remove(filter string) {
	r.mu.Lock()
	delete(r.subs, filter)
	r.mu.Unlock()
}

// handlers returns every handler whose filter matches name.
func (r *registry) handlers(name string) []MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MessageHandler
	for _, s := range r.subs {
		if topic.Match(s.filter, name) {
			out = append(out, s.handler)
		}
	}
	return out
}

// options lists all filters for one SUBSCRIBE packet, sorted by filter.
func (r *registry) options() []paho.SubscribeOptions {
	r.mu.RLock()
	opts := make([]paho.SubscribeOptions, 0, len(r.subs))
	for _, s := range r.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: s.filter, QoS: s.qos})
	}
	r.mu.RUnlock()
	sort.Slice(opts, func(i, j int) bool { return opts[i].Topic < opts[j].Topic })
	return opts
}
