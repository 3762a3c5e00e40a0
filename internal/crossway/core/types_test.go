package core

import "testing"

func TestParseIntersectionEvent(t *testing.T) {
	for _, ev := range []IntersectionEvent{EventApproaching, EventEntering, EventExiting, EventError} {
		got, err := ParseIntersectionEvent(ev.String())
		if err != nil || got != ev {
			t.Errorf("ParseIntersectionEvent(%q) = %v, %v", ev, got, err)
		}
	}
	if got, err := ParseIntersectionEvent("entering"); err != nil || got != EventEntering {
		t.Errorf("lower case not accepted: %v, %v", got, err)
	}
	if _, err := ParseIntersectionEvent("parking"); err == nil {
		t.Error("expected an error for an unknown event")
	}
}

func TestVehicleStatusOrder(t *testing.T) {
	order := []VehicleStatus{StatusIdle, StatusRequesting, StatusCrossing, StatusExiting}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%s does not precede %s", order[i-1], order[i])
		}
	}
	if VehicleStatus(9).Valid() {
		t.Error("VehicleStatus(9) reported valid")
	}
}
