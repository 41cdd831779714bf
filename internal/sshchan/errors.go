package sshchan

import "errors"

// ErrRequestFIFOEmpty is returned by HandleSuccessFailure when a
// CHANNEL_SUCCESS/CHANNEL_FAILURE arrives with no outstanding request to
// match it against (spec.md §4.4: "underflow is a protocol error").
var ErrRequestFIFOEmpty = errors.New("sshchan: channel request FIFO underflow")
