package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewBuilder("crossway/v1/")

	if got, want := b.Build("request", "veh-1"), "crossway/v1/request/veh-1"; got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
	if got, want := b.BuildWildcard("exiting"), "crossway/v1/exiting/+"; got != want {
		t.Errorf("BuildWildcard() = %q, want %q", got, want)
	}
	if got, want := b.Shared("arbiter").BuildWildcard("request"), "$share/arbiter/crossway/v1/request/+"; got != want {
		t.Errorf("Shared().BuildWildcard() = %q, want %q", got, want)
	}
}

func TestVehicleID(t *testing.T) {
	b := NewBuilder("crossway/v1")

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"crossway/v1/request/veh-1", "veh-1", true},
		{"crossway/v1/request/", "", false},
		{"crossway/v1/request/veh-1/x", "", false},
		{"crossway/v1/exiting/veh-1", "", false},
	}
	for _, tt := range tests {
		id, ok := b.VehicleID("request", tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("VehicleID(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
