/*
Copyright (c) BlueBridge contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config is everything the gateway needs to wire up real hardware
// that isn't carried in the persisted settings blob (internal/settings
// owns APN/broker/period, which survive a restart; this is the
// per-install device topology instead).
type Config struct {
	ModemDevice string `yaml:"modem_device"`
	ModemBaud   int    `yaml:"modem_baud"`

	ChartPlotterDevice    string `yaml:"chartplotter_device"`
	ChartPlotterBaud      int    `yaml:"chartplotter_baud"`
	ChartPlotterBluetooth bool   `yaml:"chartplotter_bluetooth"`

	InstrumentBusDevice string `yaml:"instrumentbus_device"`
	InstrumentBusBaud   int    `yaml:"instrumentbus_baud"`

	SettingsPath   string `yaml:"settings_path"`
	MonitoringPort int    `yaml:"monitoring_port"`
	StatusPort     int    `yaml:"status_port"`
}

// DefaultConfig seeds every flag before a config file (if any) is
// layered on top, mirroring fbclock-daemon's main.go flag/config
// precedence.
func DefaultConfig() *Config {
	return &Config{
		ModemDevice:         "/dev/ttyUSB0",
		ModemBaud:           115200,
		ChartPlotterDevice:  "/dev/rfcomm0",
		ChartPlotterBaud:    4800,
		InstrumentBusDevice: "/dev/ttyUSB1",
		InstrumentBusBaud:   4800,
		SettingsPath:        "/var/lib/bluebridge/settings.json",
		MonitoringPort:      9107,
		StatusPort:          9108,
	}
}

// EvalAndValidate rejects obviously-bad configuration before the
// gateway starts, the same gate fbclock/daemon/config.go's
// EvalAndValidate applies.
func (c *Config) EvalAndValidate() error {
	if c.ModemDevice == "" {
		return fmt.Errorf("bad config: 'modem_device' must not be empty")
	}
	if c.ModemBaud <= 0 {
		return fmt.Errorf("bad config: 'modem_baud' must be positive")
	}
	if !c.ChartPlotterBluetooth && c.ChartPlotterDevice == "" {
		return fmt.Errorf("bad config: 'chartplotter_device' must not be empty unless 'chartplotter_bluetooth' is set")
	}
	if c.ChartPlotterBaud <= 0 {
		return fmt.Errorf("bad config: 'chartplotter_baud' must be positive")
	}
	if c.InstrumentBusDevice == "" {
		return fmt.Errorf("bad config: 'instrumentbus_device' must not be empty")
	}
	if c.InstrumentBusBaud <= 0 {
		return fmt.Errorf("bad config: 'instrumentbus_baud' must be positive")
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("bad config: 'settings_path' must not be empty")
	}
	if c.MonitoringPort <= 0 || c.MonitoringPort > 65535 {
		return fmt.Errorf("bad config: 'monitoring_port' out of range")
	}
	if c.StatusPort <= 0 || c.StatusPort > 65535 {
		return fmt.Errorf("bad config: 'status_port' out of range")
	}
	if c.StatusPort == c.MonitoringPort {
		return fmt.Errorf("bad config: 'status_port' and 'monitoring_port' must differ")
	}
	return nil
}

// ReadConfig reads and strictly unmarshals a yaml config file over top
// of DefaultConfig, following fbclock/daemon's ReadConfig exactly
// except for the unmarshal target already carrying defaults.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
