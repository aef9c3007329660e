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
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "localhost:9108", "host:port of a running gateway's status endpoint")
	RootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a running gateway's boat-data snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		dump, err := fetchStatus(statusAddr, 5*time.Second)
		if err != nil {
			return fmt.Errorf("fetch status from %s: %w", statusAddr, err)
		}
		renderStatus(os.Stdout, dump)
		return nil
	},
}
