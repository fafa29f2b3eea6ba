package mux

// StreamState represents the lifecycle state of a stream.
//
// The transport-level "bound" step (the moment a connection-scoped id is
// assigned) is not a distinct enum value: binding opens the stream, and
// whether a stream is bound is observable via ID() != 0.
type StreamState uint8

const (
	// StreamStateCreated indicates the stream exists locally but has no
	// transport id yet. Outbound wire operations are caller errors in this
	// state (priority updates are recorded and deferred).
	StreamStateCreated StreamState = iota

	// StreamStateOpen indicates the stream is bound to a transport id and
	// both directions are active.
	StreamStateOpen

	// StreamStateHalfClosedLocal indicates this endpoint has sent its
	// end-of-stream marker; it can still receive.
	StreamStateHalfClosedLocal

	// StreamStateHalfClosedRemote indicates the peer has sent its
	// end-of-stream marker; this endpoint can still send.
	StreamStateHalfClosedRemote

	// StreamStateClosed is terminal. It is entered when both directions
	// have ended, when either side resets, or when the connection tears
	// down. No transition leaves it.
	StreamStateClosed
)

// String returns a string representation of the StreamState.
func (s StreamState) String() string {
	switch s {
	case StreamStateCreated:
		return "created"
	case StreamStateOpen:
		return "open"
	case StreamStateHalfClosedLocal:
		return "half-closed (local)"
	case StreamStateHalfClosedRemote:
		return "half-closed (remote)"
	case StreamStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
