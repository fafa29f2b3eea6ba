package mux

// StreamPriority is the negotiated priority triple for a stream.
//
// Weight carries the wire value (0-255); the effective scheduling weight is
// Weight+1, giving the protocol range 1-256. Dependency names the stream
// this one depends on (0 means the connection root). Exclusive marks an
// exclusive dependency on that parent.
type StreamPriority struct {
	Weight     uint8
	Dependency uint32
	Exclusive  bool
}

// DefaultStreamPriority is the baseline assigned to streams that never
// negotiated a priority: wire weight 15 (effective 16), dependent on the
// root, non-exclusive.
var DefaultStreamPriority = StreamPriority{Weight: 15}

// Equal reports whether two priorities carry the same triple. Priority
// handling is edge-triggered throughout the engine, so equality is the
// guard against duplicate PRIORITY propagation.
func (p StreamPriority) Equal(o StreamPriority) bool {
	return p.Weight == o.Weight && p.Dependency == o.Dependency && p.Exclusive == o.Exclusive
}

// EffectiveWeight returns the scheduling weight in the 1-256 range.
func (p StreamPriority) EffectiveWeight() uint16 {
	return uint16(p.Weight) + 1
}
