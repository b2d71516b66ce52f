package node

import (
	"github.com/lovepark/tofnode/internal/device"
	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/version"
)

// StatusGenericFailure is the status for failures that are not
// device-reported; device faults surface their own code instead.
const StatusGenericFailure = -1

// msgCannotDeleteActive is returned when a caller asks to remove the
// application the camera is currently running.
const msgCannotDeleteActive = "Cannot delete active application!"

// DumpResult is the response of the Dump operation.
type DumpResult struct {
	Status int    `json:"status"`
	Config string `json:"config"`
}

// OpResult is the response of the Configure and RemoveApplication operations.
type OpResult struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// statusOf maps an operation failure to its wire status and message: a
// device-reported fault keeps its code, anything else is a generic failure.
func statusOf(err error) (int, string) {
	if de, ok := device.AsError(err); ok {
		return de.Code, de.Msg
	}
	return StatusGenericFailure, err.Error()
}

// Version reports the node's version string. It reads no shared mutable
// state and takes no lock.
func (n *Node) Version() string {
	return version.String()
}

// Dump serialises the camera's current configuration. Whatever the outcome,
// the frame source is discarded and rebuilt before returning: even a failed
// dump may have left the device mid-transaction, and rebuilding is the safe
// default.
func (n *Node) Dump() DumpResult {
	res := DumpResult{}
	n.slot.WithExclusive(func(g *Guard) error {
		defer g.Replace(n.newSource())

		doc, err := n.cam.ToJSON()
		if err != nil {
			res.Status, _ = statusOf(err)
			return nil
		}
		res.Config = doc
		return nil
	})
	return res
}

// Configure applies a partial or full configuration document to the camera.
// Only the fields present in the document are written, fully qualified from
// the document root. The frame source is rebuilt on every exit path.
func (n *Node) Configure(doc string) OpResult {
	res := OpResult{Status: 0, Msg: "OK"}
	n.slot.WithExclusive(func(g *Guard) error {
		defer g.Replace(n.newSource())

		if err := n.cam.FromJSON(doc); err != nil {
			res.Status, res.Msg = statusOf(err)
		}
		return nil
	})
	return res
}

// RemoveApplication deletes the application stored at index on the camera.
//
// An index of zero or below is a silent success: removing a null target is
// not an error, and the device is not touched. The active application is
// never deleted; asking for it is rejected with a generic-failure status and
// no delete call. On every path — success, rejection, device fault — the
// administrative session is closed before the frame source rebuild, because
// WaitForFrame is only defined while the camera is back in RUN mode.
func (n *Node) RemoveApplication(index int) OpResult {
	res := OpResult{Status: 0, Msg: "OK"}
	n.slot.WithExclusive(func(g *Guard) error {
		defer g.Replace(n.newSource())
		defer func() {
			// Session closure is not guarded by the same error
			// handling as the delete: it must run even after an
			// early rejection. With no session open it is a no-op.
			if err := n.cam.CancelSession(); err != nil {
				monitoring.Warnf("failed to cancel camera session: %v", err)
			}
		}()

		if index <= 0 {
			return nil
		}

		if err := n.removeApplication(index, &res); err != nil {
			res.Status, res.Msg = statusOf(err)
		}
		return nil
	})
	return res
}

func (n *Node) removeApplication(index int, res *OpResult) error {
	if err := n.cam.RequestSession(); err != nil {
		return err
	}
	if err := n.cam.SetOperatingMode(device.EditMode); err != nil {
		return err
	}
	cfg, err := n.cam.DeviceConfig()
	if err != nil {
		return err
	}
	if cfg.ActiveApplication() == index {
		res.Status = StatusGenericFailure
		res.Msg = msgCannotDeleteActive
		return nil
	}
	return n.cam.DeleteApplication(index)
}
