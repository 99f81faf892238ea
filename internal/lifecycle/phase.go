package lifecycle

// Phase is the lifecycle position of a Controller.
//
//	Idle -> Starting -> Running -> Stopping -> Idle
//
// A failed or cancelled start goes from Starting back to Idle through the
// same teardown as Stop.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
)

// String returns a human-readable phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// active reports whether broker events should be acted on.
func (p Phase) active() bool {
	return p == PhaseStarting || p == PhaseRunning
}
