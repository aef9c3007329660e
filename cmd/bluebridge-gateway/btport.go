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
	"io"
	"time"

	"github.com/miniwinwm/bluebridge/internal/collaborators"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

// btPort adapts a collaborators.BluetoothAcceptor -- the out-of-scope
// SPP pairing/acceptor collaborator -- to serialport.Port, so the
// chart-plotter transmit slot can be driven through whatever acceptor
// a deployment supplies instead of requiring a bound virtual tty.
// The chart plotter is transmit-only (spec's "serial to chart
// plotter" carries outbound sentences only), so Read never needs to
// return real data; it just blocks until Close.
type btPort struct {
	acceptor collaborators.BluetoothAcceptor
	done     chan struct{}
}

func newBTPort(acceptor collaborators.BluetoothAcceptor) serialport.Port {
	return &btPort{acceptor: acceptor, done: make(chan struct{})}
}

func (p *btPort) Write(b []byte) (int, error) {
	return p.acceptor.Write(b)
}

func (p *btPort) Read([]byte) (int, error) {
	<-p.done
	return 0, io.EOF
}

func (p *btPort) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}

func (p *btPort) SetReadTimeout(d time.Duration) error {
	return nil
}
