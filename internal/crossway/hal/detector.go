package hal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

// Step is one scripted event at an offset from the start of the script.
type Step struct {
	Event  core.IntersectionEvent
	Offset time.Duration
}

// ParseScript parses "approaching@0s,entering@2s,exiting@6s". Steps are
// sorted by offset.
func ParseScript(s string) ([]Step, error) {
	var steps []Step
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, at, ok := strings.Cut(part, "@")
		if !ok {
			return nil, fmt.Errorf("script step %q: want event@offset", part)
		}
		ev, err := core.ParseIntersectionEvent(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("script step %q: %w", part, err)
		}
		offset, err := time.ParseDuration(strings.TrimSpace(at))
		if err != nil {
			return nil, fmt.Errorf("script step %q: %w", part, err)
		}
		if offset < 0 {
			return nil, fmt.Errorf("script step %q: negative offset", part)
		}
		steps = append(steps, Step{Event: ev, Offset: offset})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty script")
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Offset < steps[j].Offset })
	return steps, nil
}

// ScriptedDetector replays steps, optionally restarting the script every
// Repeat. It implements core.Detector.
type ScriptedDetector struct {
	steps  []Step
	repeat time.Duration
	clock  clock.Clock
	logger log.Logger
}

var _ core.Detector = (*ScriptedDetector)(nil)

// NewScriptedDetector creates a detector. A zero repeat plays the script once.
func NewScriptedDetector(steps []Step, repeat time.Duration, clk clock.Clock, logger log.Logger) *ScriptedDetector {
	return &ScriptedDetector{
		steps:  steps,
		repeat: repeat,
		clock:  clk,
		logger: logger.WithName("detector"),
	}
}

func (d *ScriptedDetector) Run(ctx context.Context, emit func(core.IntersectionEvent)) error {
	for round := 0; ; round++ {
		start := d.clock.Now()
		for _, s := range d.steps {
			if !d.sleepUntil(ctx, start.Add(s.Offset)) {
				return nil
			}
			d.logger.Info("[HAL] Intersection event", "event", s.Event.String(), "round", round)
			emit(s.Event)
		}
		if d.repeat <= 0 {
			<-ctx.Done()
			return nil
		}
		if !d.sleepUntil(ctx, start.Add(d.repeat)) {
			return nil
		}
	}
}

func (d *ScriptedDetector) sleepUntil(ctx context.Context, t time.Time) bool {
	wait := t.Sub(d.clock.Now())
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := d.clock.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}
