// Package config loads the node's immutable runtime configuration.
//
// The camera node core never reads configuration sources itself: main resolves
// a Config from the optional JSON file plus flag overrides and hands the value
// in at construction time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for the camera connection. These mirror the factory settings of the
// sensor: XML-RPC control on port 80, frame data on port 50010.
const (
	DefaultCameraAddr    = "192.168.0.69"
	DefaultControlPort   = 80
	DefaultDataPort      = 50010
	DefaultPassword      = ""
	DefaultTimeoutMillis = 500
	DefaultListenAddr    = ":8080"
	DefaultFrameID       = "tofnode_link"
)

// FileConfig is the JSON shape of an on-disk config file. All fields are
// optional; omitted fields keep their defaults, so partial configs are safe.
type FileConfig struct {
	CameraAddr       *string `json:"camera_addr,omitempty"`
	ControlPort      *int    `json:"control_port,omitempty"`
	DataPort         *int    `json:"data_port,omitempty"`
	Password         *string `json:"password,omitempty"`
	TimeoutMillis    *int    `json:"timeout_millis,omitempty"`
	ListenAddr       *string `json:"listen,omitempty"`
	FrameID          *string `json:"frame_id,omitempty"`
	PublishVizImages *bool   `json:"publish_viz_images,omitempty"`
}

// Config is the resolved, immutable configuration consumed by the node.
type Config struct {
	// CameraAddr is the sensor's network address (host or host:port is not
	// accepted; ports are configured separately).
	CameraAddr string

	// ControlPort is the XML-RPC control port on the camera.
	ControlPort int

	// DataPort is the TCP port streaming frame data.
	DataPort int

	// Password authenticates administrative sessions on the camera.
	Password string

	// TimeoutMillis bounds each wait for the next frame.
	TimeoutMillis int

	// ListenAddr is the HTTP listen address for the API and debug routes.
	ListenAddr string

	// FrameID tags every published frame.
	FrameID string

	// PublishVizImages enables the supplemental visualization images
	// (depth colormap, good/bad pixel map, amplitude histogram).
	PublishVizImages bool
}

// Default returns a Config populated with all default values.
func Default() Config {
	return Config{
		CameraAddr:    DefaultCameraAddr,
		ControlPort:   DefaultControlPort,
		DataPort:      DefaultDataPort,
		Password:      DefaultPassword,
		TimeoutMillis: DefaultTimeoutMillis,
		ListenAddr:    DefaultListenAddr,
		FrameID:       DefaultFrameID,
	}
}

// Load reads a FileConfig from path and resolves it over the defaults.
// The file must have a .json extension and be under the max file size.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.apply(&fc)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) apply(fc *FileConfig) {
	if fc.CameraAddr != nil {
		c.CameraAddr = *fc.CameraAddr
	}
	if fc.ControlPort != nil {
		c.ControlPort = *fc.ControlPort
	}
	if fc.DataPort != nil {
		c.DataPort = *fc.DataPort
	}
	if fc.Password != nil {
		c.Password = *fc.Password
	}
	if fc.TimeoutMillis != nil {
		c.TimeoutMillis = *fc.TimeoutMillis
	}
	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}
	if fc.FrameID != nil {
		c.FrameID = *fc.FrameID
	}
	if fc.PublishVizImages != nil {
		c.PublishVizImages = *fc.PublishVizImages
	}
}

// Validate checks the resolved configuration for values the node cannot run
// with.
func (c Config) Validate() error {
	if c.CameraAddr == "" {
		return fmt.Errorf("camera address is required")
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		return fmt.Errorf("control port %d out of range", c.ControlPort)
	}
	if c.DataPort <= 0 || c.DataPort > 65535 {
		return fmt.Errorf("data port %d out of range", c.DataPort)
	}
	if c.TimeoutMillis <= 0 {
		return fmt.Errorf("timeout_millis must be positive, got %d", c.TimeoutMillis)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.FrameID == "" {
		return fmt.Errorf("frame_id is required")
	}
	return nil
}
