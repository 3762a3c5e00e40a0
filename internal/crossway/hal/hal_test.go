package hal

import (
	"context"
	"reflect"
	"testing"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

func TestParseScript(t *testing.T) {
	tests := []struct {
		in      string
		want    []Step
		wantErr bool
	}{
		{
			in: "approaching@0s, entering@2s,exiting@6s",
			want: []Step{
				{core.EventApproaching, 0},
				{core.EventEntering, 2 * time.Second},
				{core.EventExiting, 6 * time.Second},
			},
		},
		{
			in: "EXITING@6s,approaching@0s,entering@1500ms",
			want: []Step{
				{core.EventApproaching, 0},
				{core.EventEntering, 1500 * time.Millisecond},
				{core.EventExiting, 6 * time.Second},
			},
		},
		{in: "", wantErr: true},
		{in: "approaching", wantErr: true},
		{in: "honk@1s", wantErr: true},
		{in: "approaching@soon", wantErr: true},
		{in: "approaching@-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScript(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseScript() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScriptedDetectorPlaysInOrder(t *testing.T) {
	steps := []Step{
		{core.EventApproaching, 0},
		{core.EventEntering, 10 * time.Millisecond},
		{core.EventExiting, 20 * time.Millisecond},
	}
	d := NewScriptedDetector(steps, 0, clock.RealClock{}, log.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan core.IntersectionEvent, 3)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, func(ev core.IntersectionEvent) { events <- ev }) }()

	var got []core.IntersectionEvent
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %v before timing out", got)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	want := []core.IntersectionEvent{core.EventApproaching, core.EventEntering, core.EventExiting}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestScriptedDetectorStopsOnCancel(t *testing.T) {
	d := NewScriptedDetector([]Step{{core.EventApproaching, time.Hour}}, 0, clock.RealClock{}, log.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, func(core.IntersectionEvent) { t.Error("unexpected event") }) }()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestLoggingMotion(t *testing.T) {
	m := NewLoggingMotion(log.NewNopLogger())
	if m.State() != MotionPaused {
		t.Fatalf("initial state = %s", m.State())
	}
	m.Resume()
	if m.State() != MotionMoving {
		t.Errorf("after Resume = %s", m.State())
	}
	m.Stop()
	m.Resume()
	if m.State() != MotionStopped {
		t.Errorf("Resume after Stop changed state to %s", m.State())
	}
}
