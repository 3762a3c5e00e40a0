package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

// Writer stores closed episodes. *Store implements it.
type Writer interface {
	Put(ep *Episode) error
}

// Recorder turns the daemon's status changes into episodes. Observe runs on
// the control loop and never blocks; Run writes closed episodes.
type Recorder struct {
	w       Writer
	vehicle core.PeerID
	mode    string
	lane    core.LaneSpec
	retries func() int
	logger  log.Logger

	current *Episode
	closed  chan *Episode
}

// NewRecorder creates a recorder. retries may be nil.
func NewRecorder(w Writer, vehicle core.PeerID, mode string, lane core.LaneSpec, retries func() int, logger log.Logger) *Recorder {
	return &Recorder{
		w:       w,
		vehicle: vehicle,
		mode:    mode,
		lane:    lane,
		retries: retries,
		logger:  logger.WithName("journal"),
		closed:  make(chan *Episode, 32),
	}
}

// Observe records that the vehicle entered status at the given time.
func (r *Recorder) Observe(status core.VehicleStatus, at time.Time) {
	switch status {
	case core.StatusRequesting:
		r.current = &Episode{
			ID:          newID(),
			VehicleID:   r.vehicle,
			Mode:        r.mode,
			Lane:        r.lane,
			RequestedAt: at,
		}
	case core.StatusCrossing:
		if r.current != nil {
			r.current.GrantedAt = at
			if r.retries != nil {
				r.current.Retries = r.retries()
			}
		}
	case core.StatusExiting:
		if r.current != nil {
			r.current.ExitingAt = at
		}
	case core.StatusIdle:
		if r.current == nil {
			return
		}
		r.current.ClosedAt = at
		select {
		case r.closed <- r.current:
		default:
			r.logger.Warn("Journal backlog full, dropping episode", "episode", r.current.ID)
		}
		r.current = nil
	}
}

// Run persists closed episodes until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ep := <-r.closed:
			if err := r.w.Put(ep); err != nil {
				r.logger.Error(err, "Failed to store episode", "episode", ep.ID)
				continue
			}
			r.logger.Info("Episode recorded", "episode", ep.ID, "wait", ep.Wait(), "retries", ep.Retries)
		}
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
