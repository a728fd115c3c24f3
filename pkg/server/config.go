package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config is the server configuration.
type Config struct {
	// Address is the listen address (default ":8080").
	Address string

	// RedirectAddress, when set, starts a second plain-HTTP listener
	// that permanently redirects every request to the HTTPS equivalent.
	RedirectAddress string

	// APIURL is the controller WebSocket endpoint (required).
	APIURL string

	// APIVersion selects the controller API dialect: "rpc" or "legacy"
	// (default "rpc").
	APIVersion string

	// StaticRoot serves the GUI assets when set; unknown paths fall back
	// to its index.html.
	StaticRoot string

	// S3Bucket enables Import-by-BundleID lookup from object storage.
	S3Bucket string
	S3Prefix string
	S3Region string

	// AMQPURL enables publishing deployment changes to a broker.
	AMQPURL      string
	AMQPExchange string

	// WebSocket upgrade buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates browser upgrade origins. The default accepts
	// everything: the proxy performs no authentication of its own and the
	// controller validates credentials.
	CheckOrigin func(*http.Request) bool

	// MetricsRegistry receives the server's Prometheus collectors
	// (default: the global registry).
	MetricsRegistry prometheus.Registerer

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		APIVersion:        "rpc",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       func(*http.Request) bool { return true },
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		AMQPExchange:      "stevedore.deployments",
	}
}

// fillDefaults completes unset fields from DefaultConfig.
func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.APIVersion == "" {
		c.APIVersion = defaults.APIVersion
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.AMQPExchange == "" {
		c.AMQPExchange = defaults.AMQPExchange
	}
}

// Validate checks the configuration for problems that would prevent the
// server from operating.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("missing controller API URL")
	}
	if c.APIVersion != "rpc" && c.APIVersion != "legacy" {
		return fmt.Errorf("invalid API version %q", c.APIVersion)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("S3 bundle store requires a region")
	}
	return nil
}
