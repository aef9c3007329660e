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
	"github.com/miniwinwm/bluebridge/internal/atmodem"
	"github.com/miniwinwm/bluebridge/internal/metrics"
)

// meteredEngine wraps an *atmodem.Engine to record every command's
// resulting status in the modem_commands_total counter, without
// threading a metrics dependency through internal/atmodem or
// internal/publisher -- publisher.New takes any value with this
// method set, so the decorator satisfies it structurally.
type meteredEngine struct {
	engine *atmodem.Engine
	reg    *metrics.Registry
}

func newMeteredEngine(engine *atmodem.Engine, reg *metrics.Registry) *meteredEngine {
	return &meteredEngine{engine: engine, reg: reg}
}

func (m *meteredEngine) observe(resp atmodem.Response) atmodem.Response {
	m.reg.ObserveModemCommand(resp.Status)
	return resp
}

func (m *meteredEngine) GetNetworkRegistration(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.GetNetworkRegistration(timeoutMs))
}

func (m *meteredEngine) GetIMEI(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.GetIMEI(timeoutMs))
}

func (m *meteredEngine) DeleteAllSMS(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.DeleteAllSMS(timeoutMs))
}

func (m *meteredEngine) SetSMSPDUMode(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.SetSMSPDUMode(timeoutMs))
}

func (m *meteredEngine) SetSMSReceiveMode(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.SetSMSReceiveMode(timeoutMs))
}

func (m *meteredEngine) PDPActivated() bool {
	return m.engine.PDPActivated()
}

func (m *meteredEngine) TCPConnected() bool {
	return m.engine.TCPConnected()
}

func (m *meteredEngine) DeactivatePDP(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.DeactivatePDP(timeoutMs))
}

func (m *meteredEngine) ConfigureDataContext(apn, user, pass string, timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.ConfigureDataContext(apn, user, pass, timeoutMs))
}

func (m *meteredEngine) ActivatePDP(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.ActivatePDP(timeoutMs))
}

func (m *meteredEngine) GetOwnIP(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.GetOwnIP(timeoutMs))
}

func (m *meteredEngine) OpenTCP(host string, port int, timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.OpenTCP(host, port, timeoutMs))
}

func (m *meteredEngine) CloseTCP(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.CloseTCP(timeoutMs))
}

func (m *meteredEngine) GetSignalStrength(timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.GetSignalStrength(timeoutMs))
}

func (m *meteredEngine) ReceiveSMS(id int, timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.ReceiveSMS(id, timeoutMs))
}

func (m *meteredEngine) SendSMS(pduHex string, pduLength int, timeoutMs int64) atmodem.Response {
	return m.observe(m.engine.SendSMS(pduHex, pduLength, timeoutMs))
}
