// Package env sets up a link from command line flags and environment.
package env

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/oilink/pkg/oi"
	"github.com/robotalks/oilink/pkg/oi/serial"
	"github.com/robotalks/oilink/pkg/telemetry/mqtt"
)

// Config provides the options to create a link.
type Config struct {
	// ID identifies the link in telemetry.
	ID string

	Device           string
	BaudRate         int
	Debug            bool
	HandshakeTimeout time.Duration
	MaxAttempts      int

	// Opener replaces the serial port when set.
	Opener oi.Opener

	// MQTTBrokerURL specifies the MQTT broker for state reports, empty to disable.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	Device:      serial.DefaultDevice,
	BaudRate:    oi.DefaultBaudRate,
	MaxAttempts: oi.DefaultMaxAttempts,
}

func init() {
	if val := os.Getenv("OI_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("OI_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		}
	}
	if val := os.Getenv("ROBO_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Link ID, default is derived from machine ID")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device connected to the robot")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Baud rate")
	flag.BoolVar(&defaultConfig.Debug, "oi-debug", defaultConfig.Debug, "Log bytes sent/received")
	flag.DurationVar(&defaultConfig.HandshakeTimeout, "handshake-timeout", defaultConfig.HandshakeTimeout, "Timeout of a handshake attempt, 0 to wait forever")
	flag.IntVar(&defaultConfig.MaxAttempts, "attempts", defaultConfig.MaxAttempts, "Handshake attempts")
	SetupMQTTFlags()
}

// SetupMQTTFlags sets the MQTT broker flag only.
func SetupMQTTFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for state reports")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LinkID returns ID or the machine ID if not specified.
func (c *Config) LinkID() string {
	if c.ID != "" {
		return c.ID
	}
	return MachineID()
}

// SerialConfig returns the serial port settings.
func (c *Config) SerialConfig() serial.Config {
	return serial.Config{Device: c.Device, BaudRate: c.BaudRate}
}

// NewLink creates an unconnected link from config. If an MQTT broker is
// configured, the returned Reporter publishes state changes of the link
// and must be closed by the caller.
func (c *Config) NewLink() (*oi.Link, *mqtt.Reporter, error) {
	if c.BaudRate <= 0 {
		return nil, nil, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	var opener oi.Opener = c.SerialConfig()
	if c.Opener != nil {
		opener = c.Opener
	}
	link := oi.NewLink(opener)
	link.SetDebug(c.Debug)
	link.HandshakeTimeout = c.HandshakeTimeout
	if c.MaxAttempts > 0 {
		link.MaxAttempts = c.MaxAttempts
	}
	if c.MQTTBrokerURL == "" {
		return link, nil, nil
	}
	reporter, err := mqtt.NewReporterFromURL(c.MQTTBrokerURL, c.LinkID(), c.Device)
	if err != nil {
		return nil, nil, fmt.Errorf("create MQTT reporter error: %v", err)
	}
	link.Notifier = reporter
	return link, reporter, nil
}
