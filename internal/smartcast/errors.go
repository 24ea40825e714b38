package smartcast

import (
	"errors"
	"fmt"
)

// ErrNoData indicates the device answered but the response carried no
// usable payload (missing ITEMS, missing field, unparseable body). Callers
// treat it as "unknown", never as a false/zero reading.
var ErrNoData = errors.New("smartcast: no data in device response")

// ErrInputSelectionUnsupported indicates the firmware did not return a
// freshness token from the change-input endpoint; this model cannot switch
// inputs programmatically.
var ErrInputSelectionUnsupported = errors.New("smartcast: device does not support programmatic input selection")

// ErrInputNotFound indicates the requested input matched nothing in the
// device input list.
var ErrInputNotFound = errors.New("smartcast: input not found")

// CommandError is a well-formed device response rejecting a command
// (STATUS.RESULT other than SUCCESS).
type CommandError struct {
	Result string
	Detail string
}

func (e *CommandError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("smartcast: device rejected command: %s (%s)", e.Result, e.Detail)
	}
	return fmt.Sprintf("smartcast: device rejected command: %s", e.Result)
}
