// Package config loads the demo's board list from YAML.
//
//	carrier: pi-click-shield
//	boards:
//	  - name: light
//	    driver: ambient
//	    socket: mikrobus1
//	    interval: 2s
//	    params:
//	      gain: 1
//	  - name: modem
//	    driver: modem
//	    socket: mikrobus2
//	    interval: 1m
//	    params:
//	      baud: ${GSM_BAUD}
//
// ${VAR} references are expanded from the environment before parsing.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"clickboards-go/bus"
	"clickboards-go/hal"
	"clickboards-go/services/heartbeat"
)

// Topic prefix for published board configs.
const TopicConfig = "config"

// heartbeatName shares the config/<name> namespace with boards.
const heartbeatName = "heartbeat"

// DefaultCarrier is used when the file names none.
const DefaultCarrier = "pi-click-shield"

// Board is one Click board instance.
type Board struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	Socket string `yaml:"socket"`
	// Bus picks the interface on boards that offer more than one
	// ("i2c" or "spi"). Empty means the driver default.
	Bus      string         `yaml:"bus,omitempty"`
	Interval time.Duration  `yaml:"interval"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// Config is the whole file.
type Config struct {
	Carrier string `yaml:"carrier"`
	// Heartbeat overrides the liveness beat period when set.
	Heartbeat time.Duration `yaml:"heartbeat,omitempty"`
	Boards    []Board       `yaml:"boards"`
}

// Read expands environment references in path and parses it.
func Read(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// FromReader expands environment references in r and parses the result.
func FromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	buf, err := envsubst.Bytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "expanding config")
	}
	return Parse(buf)
}

// Parse decodes YAML without environment expansion. Unknown keys are errors.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding yaml")
	}
	if cfg.Carrier == "" {
		cfg.Carrier = DefaultCarrier
	}
	return &cfg, nil
}

// Validate checks every board against the known drivers and the carrier's
// sockets, reporting all problems at once.
func (c *Config) Validate(drivers []string) error {
	known := make(map[string]bool, len(drivers))
	for _, d := range drivers {
		known[d] = true
	}
	carrier, err := hal.Carrier(c.Carrier)
	if err != nil {
		return err
	}
	var errs error
	if c.Heartbeat < 0 {
		errs = multierr.Append(errs, errors.New("heartbeat must not be negative"))
	}
	seen := map[string]bool{heartbeatName: true}
	for i, b := range c.Boards {
		switch {
		case b.Name == "":
			errs = multierr.Append(errs, errors.Errorf("boards[%d]: missing name", i))
		case b.Name == heartbeatName:
			errs = multierr.Append(errs, errors.Errorf("boards[%d]: name %q is reserved", i, b.Name))
		case seen[b.Name]:
			errs = multierr.Append(errs, errors.Errorf("boards[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if !known[b.Driver] {
			errs = multierr.Append(errs, errors.Errorf("board %q: unknown driver %q", b.Name, b.Driver))
		}
		if _, err := carrier.Socket(b.Socket); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "board %q", b.Name))
		}
		if b.Interval <= 0 {
			errs = multierr.Append(errs, errors.Errorf("board %q: interval must be positive", b.Name))
		}
		if b.Bus != "" && b.Bus != "i2c" && b.Bus != "spi" {
			errs = multierr.Append(errs, errors.Errorf("board %q: bus must be i2c or spi", b.Name))
		}
	}
	return errs
}

// Publish puts each board's config on the bus as a retained message under
// config/<name>, and the heartbeat period under config/heartbeat when set.
func (c *Config) Publish(conn *bus.Connection) {
	if c.Heartbeat > 0 {
		conn.Publish(conn.NewMessage(heartbeat.TopicConfig, heartbeat.Config{Interval: c.Heartbeat}, true))
	}
	for _, b := range c.Boards {
		conn.Publish(conn.NewMessage(bus.T(TopicConfig, b.Name), b, true))
	}
}

// Write encodes c as YAML to path.
func (c *Config) Write(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding yaml")
	}
	return errors.Wrapf(os.WriteFile(path, out, 0o644), "writing %s", path)
}
