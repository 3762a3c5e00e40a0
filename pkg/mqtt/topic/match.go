package topic

import "strings"

// Match reports whether topic is selected by filter. Shared subscription
// prefixes on filter are ignored, since the broker delivers the bare topic.
func Match(filter, topic string) bool {
	filter = Unshare(filter)
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, Wildcard+MultiWildcard) {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		if level == MultiWildcard {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if level != Wildcard && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

// Unshare strips a "$share/{group}/" prefix from filter.
func Unshare(filter string) string {
	if !strings.HasPrefix(filter, SharePrefix) {
		return filter
	}
	parts := strings.SplitN(filter, "/", 3)
	if len(parts) < 3 {
		return filter
	}
	return parts[2]
}
