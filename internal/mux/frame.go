package mux

import "golang.org/x/net/http2/hpack"

// Headers is an ordered, multi-valued header-like mapping, the unit used
// for both initial headers and trailers. Order is preserved exactly as
// given; the same name may appear multiple times.
type Headers []hpack.HeaderField

// emptyTrailers is what the end-of-stream callback observes when the peer
// ended the stream without trailers.
var emptyTrailers = Headers{}

// Get returns the first value for name and whether it was present.
func (h Headers) Get(name string) (string, bool) {
	for _, hf := range h {
		if hf.Name == name {
			return hf.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, hf := range h {
		if hf.Name == name {
			out = append(out, hf.Value)
		}
	}
	return out
}

// ExtensionFrame is a raw, unknown or extension frame passed through the
// engine verbatim. Extension frames are control-plane signals: they bypass
// the inbound queue and all flow-control accounting in both directions.
type ExtensionFrame struct {
	Type    uint8
	Flags   uint8
	Payload []byte
}
