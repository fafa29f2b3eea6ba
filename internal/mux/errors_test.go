package mux

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeString(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeNoError, "NO_ERROR"},
		{ErrCodeProtocolError, "PROTOCOL_ERROR"},
		{ErrCodeInternalError, "INTERNAL_ERROR"},
		{ErrCodeFlowControlError, "FLOW_CONTROL_ERROR"},
		{ErrCodeStreamClosed, "STREAM_CLOSED"},
		{ErrCodeRefusedStream, "REFUSED_STREAM"},
		{ErrCodeCancel, "CANCEL"},
		{ErrorCode(0xbeef), "UNKNOWN_ERROR_CODE_48879"},
	}
	for _, tc := range cases {
		if got := tc.code.String(); got != tc.want {
			t.Errorf("ErrorCode(%#x).String() = %q, want %q", uint32(tc.code), got, tc.want)
		}
	}
}

func TestStreamErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("socket gone")
	err := NewStreamErrorWithCause(3, ErrCodeInternalError, "write failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is did not find the cause")
	}
	var se *StreamError
	if !errors.As(error(err), &se) || se.StreamID != 3 {
		t.Errorf("errors.As failed: %v", err)
	}
	if msg := err.Error(); msg == "" {
		t.Errorf("empty error string")
	}
}

func TestConnectionErrorString(t *testing.T) {
	err := NewConnectionError(ErrCodeProtocolError, "malformed frame header")
	if err.Error() == "" {
		t.Errorf("empty error string")
	}
	if err.Unwrap() != nil {
		t.Errorf("Unwrap returned non-nil without a cause")
	}
}
