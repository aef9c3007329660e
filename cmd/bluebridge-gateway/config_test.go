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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().EvalAndValidate())
}

func TestEvalAndValidateRejectsEmptyModemDevice(t *testing.T) {
	c := DefaultConfig()
	c.ModemDevice = ""
	require.Error(t, c.EvalAndValidate())
}

func TestEvalAndValidateRejectsSharedPorts(t *testing.T) {
	c := DefaultConfig()
	c.StatusPort = c.MonitoringPort
	require.Error(t, c.EvalAndValidate())
}

func TestEvalAndValidateAllowsBluetoothChartPlotterWithoutDevice(t *testing.T) {
	c := DefaultConfig()
	c.ChartPlotterBluetooth = true
	c.ChartPlotterDevice = ""
	require.NoError(t, c.EvalAndValidate())
}

func TestReadConfigLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modem_device: /dev/ttyS5\nmonitoring_port: 9200\n"), 0o600))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyS5", c.ModemDevice)
	require.Equal(t, 9200, c.MonitoringPort)
	require.Equal(t, DefaultConfig().ModemBaud, c.ModemBaud)
}

func TestReadConfigRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not_a_real_field: true\n"), 0o600))

	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestReadConfigMissingFileErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
