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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/miniwinwm/bluebridge/internal/statusdump"
)

// fetchStatus dials the running gateway's local status endpoint. It
// never talks to the modem, MQTT broker or any instrument -- only to
// the process's own snapshot dump, per the status subcommand's design.
func fetchStatus(addr string, timeout time.Duration) (statusdump.Dump, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		return statusdump.Dump{}, err
	}
	defer resp.Body.Close()

	var dump statusdump.Dump
	if err := json.NewDecoder(resp.Body).Decode(&dump); err != nil {
		return statusdump.Dump{}, err
	}
	return dump, nil
}

// renderStatus writes dump as a colorized table: green FRESH rows,
// red STALE rows, following ptpcheck/cmd/diag.go's okString/failString
// convention.
func renderStatus(w io.Writer, dump statusdump.Dump) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value", "Age (ms)", "Status"})

	for _, f := range dump.Fields {
		status := color.GreenString("FRESH")
		if !f.Fresh {
			status = color.RedString("STALE")
		}
		table.Append([]string{
			f.Name,
			fmt.Sprintf("%g", f.Value),
			fmt.Sprintf("%d", f.AgeMs),
			status,
		})
	}
	table.Render()
}
