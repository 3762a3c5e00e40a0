// Package hal holds bench stand-ins for the vehicle hardware: a motion
// controller that only logs and a detector that replays a script.
package hal

import (
	"sync"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

// MotionState is what LoggingMotion was last told to do.
type MotionState string

const (
	MotionMoving  MotionState = "moving"
	MotionPaused  MotionState = "paused"
	MotionStopped MotionState = "stopped"
)

// LoggingMotion implements core.MotionController by logging commands.
// Once stopped it ignores further commands, like the real drive train.
type LoggingMotion struct {
	logger log.Logger

	mu    sync.Mutex
	state MotionState
}

var _ core.MotionController = (*LoggingMotion)(nil)

func NewLoggingMotion(logger log.Logger) *LoggingMotion {
	return &LoggingMotion{
		logger: logger.WithName("motion"),
		state:  MotionPaused,
	}
}

func (m *LoggingMotion) Pause()  { m.set(MotionPaused) }
func (m *LoggingMotion) Resume() { m.set(MotionMoving) }
func (m *LoggingMotion) Stop()   { m.set(MotionStopped) }

// State returns the last commanded state.
func (m *LoggingMotion) State() MotionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *LoggingMotion) set(s MotionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MotionStopped {
		m.logger.Warn("Ignoring motion command after stop", "command", string(s))
		return
	}
	if m.state != s {
		m.logger.Info("[HAL] Motion", "from", string(m.state), "to", string(s))
	}
	m.state = s
}
