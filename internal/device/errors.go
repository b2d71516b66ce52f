package device

import (
	"errors"
	"fmt"
)

// Error is a fault reported by the camera itself, carrying the device-specific
// error code. Administrative operations surface the code verbatim to callers;
// anything that is not an *Error is treated as a generic failure.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Msg)
}

// AsError unwraps err into a device *Error if there is one in the chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
