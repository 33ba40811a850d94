package agent

import (
	"fmt"
)

// State is a step of an agent run.
type State string

// States of an agent run, in the order they are walked.
const (
	StateStart            State = "Start"
	StateLoadCredentials  State = "LoadCredentials"
	StateRefreshToken     State = "RefreshToken"
	StateCollectInventory State = "CollectInventory"
	StateSendHeartbeat    State = "SendHeartbeat"
	StatePersistToken     State = "PersistToken"
	StateDone             State = "Done"
	StateFailed           State = "Failed"
)

// States lists every state a run can fail in.
var States = []State{
	StateLoadCredentials,
	StateRefreshToken,
	StateCollectInventory,
	StateSendHeartbeat,
	StatePersistToken,
}

// RunError is returned when a run stops. State is the step which failed.
type RunError struct {
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// RotationError is returned when the heartbeat was accepted but the rotated token could not be stored.
// The server already invalidated the stored token, so the next run will be rejected until the
// node is re-enrolled.
type RotationError struct {
	// Key is the credential store key the rotated token was meant for.
	Key string
	Err error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("rotated token was lost and the stored %s is stale: %v", e.Key, e.Err)
}

func (e *RotationError) Unwrap() error {
	return e.Err
}
