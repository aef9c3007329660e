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

// Command bluebridge-gateway wires the gateway core together against
// real serial ports and runs it until signaled to stop. See
// cmd.go for the cobra command tree.
package main

import (
	log "github.com/sirupsen/logrus"
)

func main() {
	Execute()
}

func init() {
	log.SetReportCaller(true)
}
