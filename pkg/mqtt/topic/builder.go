package topic

import (
	"strings"
)

// Builder constructs MQTT topic strings under a common root.
// Pattern: {root}/{segment}/{vehicleID}
type Builder struct {
	// root is the base namespace for all topics (e.g. "crossway/v1").
	root string

	// group, when set, turns wildcard filters into shared subscriptions.
	group string
}

// NewBuilder creates a Builder rooted at root.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Build returns the topic for segment addressed to id.
func (b *Builder) Build(segment, id string) string {
	return b.root + "/" + segment + "/" + id
}

// BuildWildcard returns a filter matching segment for every vehicle.
// With a share group the result is $share/{group}/{root}/{segment}/+.
func (b *Builder) BuildWildcard(segment string) string {
	t := b.Build(segment, Wildcard)
	if b.group != "" {
		return SharePrefix + b.group + "/" + t
	}
	return t
}

// Shared returns a copy of the builder whose wildcard filters use the given
// shared subscription group.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, group: group}
}

// VehicleID extracts the trailing vehicle ID from a concrete topic built by
// this builder. ok is false when topic is not of the form {root}/{segment}/{id}.
func (b *Builder) VehicleID(segment, topic string) (id string, ok bool) {
	prefix := b.root + "/" + segment + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	id = topic[len(prefix):]
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
