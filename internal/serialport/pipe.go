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

package serialport

import (
	"net"
	"time"
)

// Pair returns two in-memory, synchronously connected ports, the way
// sa53fw/xmodem's tests stand in a bytes.Buffer for a real tty: here a
// net.Pipe gives both ends real read-timeout/deadline semantics, which
// a plain buffer cannot, and the modem/NMEA engines' timeout behavior
// is exactly what needs exercising.
func Pair() (Port, Port) {
	a, b := net.Pipe()
	return &netPort{c: a}, &netPort{c: b}
}

type netPort struct {
	c net.Conn
}

func (n *netPort) Read(b []byte) (int, error)  { return n.c.Read(b) }
func (n *netPort) Write(b []byte) (int, error) { return n.c.Write(b) }
func (n *netPort) Close() error                { return n.c.Close() }

func (n *netPort) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return n.c.SetReadDeadline(time.Time{})
	}
	return n.c.SetReadDeadline(time.Now().Add(d))
}
