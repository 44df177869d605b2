package command

// WorkerState is the lifecycle state of a Processor's worker.
type WorkerState int32

const (
	StateStopped WorkerState = iota
	StateStarting
	StateRunning
	StateStopRequested
)

func (s WorkerState) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopRequested:
		return "StopRequested"
	default:
		return "Unknown"
	}
}
