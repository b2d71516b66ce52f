// Package device is the client for the time-of-flight camera's control plane.
//
// A Camera owns the node's connection and session state for one sensor. It is
// not safe for concurrent use: the node serialises every mutating call behind
// its grabber slot lock, and that discipline is the only synchronisation this
// package relies on.
package device

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// OperatingMode is the camera's mode state. The camera streams frames only in
// RUN; destructive operations require EDIT, which can be entered only inside
// an administrative session.
type OperatingMode int

const (
	RunMode  OperatingMode = 0
	EditMode OperatingMode = 1
)

func (m OperatingMode) String() string {
	switch m {
	case RunMode:
		return "RUN"
	case EditMode:
		return "EDIT"
	default:
		return fmt.Sprintf("OperatingMode(%d)", int(m))
	}
}

// Client is the camera surface the node core consumes. It exists so the
// coordination logic can be tested against a scripted camera without network
// hardware.
type Client interface {
	// ToJSON serialises the full device configuration as a JSON document.
	ToJSON() (string, error)

	// FromJSON applies a fully-qualified partial configuration document.
	// Fields absent from the document are left untouched on the device.
	FromJSON(doc string) error

	// RequestSession opens the camera's single administrative session.
	RequestSession() error

	// CancelSession closes the administrative session and returns the
	// camera to RUN mode. Cancelling with no open session is a no-op.
	CancelSession() error

	// SetOperatingMode switches the camera's mode. EDIT requires an open
	// session.
	SetOperatingMode(m OperatingMode) error

	// DeviceConfig reads the camera's current device parameters.
	DeviceConfig() (*DeviceConfig, error)

	// DeleteApplication removes the application stored at index. Requires
	// EDIT mode.
	DeleteApplication(index int) error
}

// DeviceConfig is the camera's device parameter set as read from the sensor.
type DeviceConfig struct {
	Params map[string]string
}

// ActiveApplication returns the index of the application the camera is
// currently running, or 0 if the parameter is missing or malformed.
func (c *DeviceConfig) ActiveApplication() int {
	n, err := strconv.Atoi(c.Params["ActiveApplication"])
	if err != nil {
		return 0
	}
	return n
}

// Application is one stored application as reported by the camera.
type Application struct {
	Index  int    `json:"Index"`
	Name   string `json:"Name"`
	Active bool   `json:"Active"`
}

// dumpDocument is the shape of the configuration dump. The same document
// (complete or partial) is accepted back by FromJSON.
type dumpDocument struct {
	Device map[string]string `json:"Device"`
	Apps   []Application     `json:"Apps,omitempty"`
}

// dumpRoot is the document's fully-qualified root key.
const dumpRoot = "tofcam"

// Camera is the production Client backed by the sensor's XML-RPC control
// endpoint.
type Camera struct {
	addr     string
	password string
	rpc      *rpcClient
	rootURL  string

	sessionToken string
	mode         OperatingMode
}

var _ Client = (*Camera)(nil)

// NewCamera creates a handle for the camera at addr with the XML-RPC control
// plane on controlPort. No network traffic happens until the first call.
func NewCamera(addr string, controlPort int, password string) *Camera {
	return &Camera{
		addr:     addr,
		password: password,
		rpc:      newRPCClient(),
		rootURL:  fmt.Sprintf("http://%s:%d/rpc/v1/device", addr, controlPort),
		mode:     RunMode,
	}
}

// Addr returns the camera's network address.
func (c *Camera) Addr() string { return c.addr }

// Mode returns the last operating mode this handle switched the camera to.
func (c *Camera) Mode() OperatingMode { return c.mode }

// SessionActive reports whether this handle holds the administrative session.
func (c *Camera) SessionActive() bool { return c.sessionToken != "" }

func (c *Camera) sessionURL() string {
	return c.rootURL + "/session_" + c.sessionToken
}

func (c *Camera) editURL() string {
	return c.sessionURL() + "/edit"
}

// RequestSession opens the administrative session. The camera admits exactly
// one session at a time and rejects a second request with a device fault.
func (c *Camera) RequestSession() error {
	res, err := c.rpc.call(c.rootURL, "requestSession", c.password)
	if err != nil {
		return err
	}
	token, ok := res.(string)
	if !ok || token == "" {
		return fmt.Errorf("requestSession returned no session token")
	}
	c.sessionToken = token
	return nil
}

// CancelSession closes the session and drops the camera back to RUN mode.
func (c *Camera) CancelSession() error {
	if c.sessionToken == "" {
		return nil
	}
	_, err := c.rpc.call(c.sessionURL(), "cancelSession")
	if err != nil {
		return err
	}
	c.sessionToken = ""
	c.mode = RunMode
	return nil
}

// SetOperatingMode switches the camera's operating mode within the session.
func (c *Camera) SetOperatingMode(m OperatingMode) error {
	if c.sessionToken == "" {
		return fmt.Errorf("setOperatingMode requires an open session")
	}
	if _, err := c.rpc.call(c.sessionURL(), "setOperatingMode", int(m)); err != nil {
		return err
	}
	c.mode = m
	return nil
}

// DeviceConfig reads the device parameter set from the camera.
func (c *Camera) DeviceConfig() (*DeviceConfig, error) {
	res, err := c.rpc.call(c.rootURL, "getAllParameters")
	if err != nil {
		return nil, err
	}
	raw, ok := res.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("getAllParameters returned %T, want struct", res)
	}
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		params[k] = fmt.Sprint(v)
	}
	return &DeviceConfig{Params: params}, nil
}

// Applications lists the applications stored on the camera.
func (c *Camera) Applications() ([]Application, error) {
	res, err := c.rpc.call(c.rootURL, "getApplicationList")
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("getApplicationList returned %T, want array", res)
	}
	apps := make([]Application, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("malformed application entry %T", entry)
		}
		app := Application{}
		if idx, ok := m["Index"].(int); ok {
			app.Index = idx
		}
		if name, ok := m["Name"].(string); ok {
			app.Name = name
		}
		if active, ok := m["Active"].(bool); ok {
			app.Active = active
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// DeleteApplication removes the application at index. The camera must be in
// EDIT mode; it rejects the call with a device fault otherwise.
func (c *Camera) DeleteApplication(index int) error {
	if c.sessionToken == "" || c.mode != EditMode {
		return fmt.Errorf("deleteApplication requires an open session in EDIT mode")
	}
	_, err := c.rpc.call(c.editURL(), "deleteApplication", index)
	return err
}

// ToJSON dumps the camera's configuration as an indented JSON document,
// qualified from the document root. The output is suitable for editing and
// feeding back through FromJSON.
func (c *Camera) ToJSON() (string, error) {
	cfg, err := c.DeviceConfig()
	if err != nil {
		return "", err
	}
	apps, err := c.Applications()
	if err != nil {
		return "", err
	}

	doc := map[string]dumpDocument{
		dumpRoot: {Device: cfg.Params, Apps: apps},
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialise configuration: %w", err)
	}
	return string(out), nil
}

// FromJSON applies the configuration document to the camera. Only parameters
// present in the document are written; each must be fully qualified from the
// document root. The session and EDIT switch are managed internally, so the
// camera is back in RUN mode when FromJSON returns, whatever the outcome.
func (c *Camera) FromJSON(doc string) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &root); err != nil {
		return fmt.Errorf("malformed configuration document: %w", err)
	}
	body, ok := root[dumpRoot]
	if !ok {
		return fmt.Errorf("configuration document missing root %q", dumpRoot)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(body, &sections); err != nil {
		return fmt.Errorf("malformed configuration document: %w", err)
	}

	var dev map[string]interface{}
	for name, raw := range sections {
		switch name {
		case "Device":
			if err := json.Unmarshal(raw, &dev); err != nil {
				return fmt.Errorf("malformed Device section: %w", err)
			}
		case "Apps":
			// Dumps carry the stored application inventory. It is
			// read-only metadata here; accept it so a dump round-trips,
			// but validate the shape.
			var apps []Application
			if err := json.Unmarshal(raw, &apps); err != nil {
				return fmt.Errorf("malformed Apps section: %w", err)
			}
		default:
			return fmt.Errorf("unknown configuration section %q", name)
		}
	}
	if len(dev) == 0 {
		return nil
	}

	if err := c.RequestSession(); err != nil {
		return err
	}
	// The session must come down on every path so the camera is streaming
	// again when the caller rebuilds its frame connection.
	defer c.CancelSession()

	if err := c.SetOperatingMode(EditMode); err != nil {
		return err
	}
	for name, value := range dev {
		if _, err := c.rpc.call(c.editURL(), "setParameter", name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("failed to set parameter %q: %w", name, err)
		}
	}
	return nil
}
