package topic

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"crossway/v1/grant/veh-1", "crossway/v1/grant/veh-1", true},
		{"crossway/v1/grant/veh-1", "crossway/v1/grant/veh-2", false},
		{"crossway/v1/request/+", "crossway/v1/request/veh-2", true},
		{"crossway/v1/request/+", "crossway/v1/request/veh-2/extra", false},
		{"crossway/v1/request/+", "crossway/v1/exiting/veh-2", false},
		{"crossway/v1/#", "crossway/v1/exiting/veh-2", true},
		{"crossway/v1/+/veh-3", "crossway/v1/exiting/veh-3", true},
		{"crossway/v1/+/veh-3", "crossway/v1", false},
		{"$share/arbiter/crossway/v1/request/+", "crossway/v1/request/veh-4", true},
		{"$share/arbiter/crossway/v1/request/+", "crossway/v1/online/veh-4", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			if got := Match(tt.filter, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestUnshare(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"$share/arbiter/crossway/v1/request/+", "crossway/v1/request/+"},
		{"crossway/v1/request/+", "crossway/v1/request/+"},
		{"$share/arbiter", "$share/arbiter"},
	}
	for _, tt := range tests {
		if got := Unshare(tt.in); got != tt.want {
			t.Errorf("Unshare(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
