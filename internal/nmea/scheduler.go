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

package nmea

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

const (
	// maxTransmitSlots and maxReceiveTypes bound each port's tables
	// (spec.md §4.3): 16 transmit slots, 6 receive types.
	maxTransmitSlots = 16
	maxReceiveTypes  = 6
)

// typeMaxAge gives each transmittable sentence type the boatdata field
// whose age window gates it: a slot never transmits data staler than
// the window the field itself is judged fresh or stale against.
var typeMaxAge = map[string]boatdata.Field{
	"RMC": boatdata.FieldLatitude,
	"GGA": boatdata.FieldLatitude,
	"VTG": boatdata.FieldSOG,
	"DPT": boatdata.FieldDepth,
	"VHW": boatdata.FieldBoatSpeed,
	"MTW": boatdata.FieldSeawaterTemp,
	"VLW": boatdata.FieldLog,
	"HDT": boatdata.FieldHeadingTrue,
	"MWV": boatdata.FieldAWA,
	"MWD": boatdata.FieldWindDirTrue,
	"HDM": boatdata.FieldHeadingTrue,
	"XDR": boatdata.FieldPressure,
	"MDA": boatdata.FieldPressure,
}

// TransmitSlot is one entry in a port's 16-slot transmit table: a
// sentence type on a self-adapting period. CurrentPeriodMs drifts away
// from NominalPeriodMs under back pressure (spec.md §4.3) and decays
// back toward it on every clean cycle.
type TransmitSlot struct {
	Type            string
	NominalPeriodMs int64
	CurrentPeriodMs int64
	LastSentMs      int64
	MaxAgeMs        int64
	Enabled         bool

	// TransmitNow is the one-shot transmit_now flag (spec.md §4.3's
	// scheduling loop step 1): set by TriggerTransmit for
	// receive-triggered forwarding, cleared the instant the slot is
	// next considered, ahead of the periodic schedule and regardless
	// of Enabled or due time.
	TransmitNow bool
}

// grow widens the period by 1% on write back pressure, matching the
// 1010/1000 multiplier spec.md §4.3 calls for.
func (s *TransmitSlot) grow() {
	s.CurrentPeriodMs = s.CurrentPeriodMs * 1010 / 1000
}

// shrink narrows the period by 0.1% on a clean cycle (999/1000),
// floored at the nominal period so it never outruns its configuration.
func (s *TransmitSlot) shrink() {
	p := s.CurrentPeriodMs * 999 / 1000
	if p < s.NominalPeriodMs {
		p = s.NominalPeriodMs
	}
	s.CurrentPeriodMs = p
}

// ReceiveCallback is invoked with a parsed sentence of a registered
// receive type, in addition to whatever the static decoder did to the
// snapshot. Used for AIS (VDM) application-level routing and for
// anything else a caller wants to observe directly.
type ReceiveCallback func(ParsedSentence)

// PortState is one serial port's transmit/receive configuration and
// live buffers.
type PortState struct {
	Name   string
	Talker string
	Port   serialport.Port

	mu            sync.Mutex
	transmitSlots []*TransmitSlot
	receiveTypes  map[string]ReceiveCallback

	// pendingSend holds bytes that overflowed the last write attempt on
	// this port, capped at MaxSentenceLen. A tick always drains this
	// before considering any slot, so byte order is preserved across
	// cycles (invariant: the scheduler never interleaves two sentences
	// on the same port).
	pendingSend []byte
}

// EnableTransmit registers a sentence type on this port's transmit
// table. The slot starts disabled: the orchestrator's per-second
// freshness evaluation (spec.md §4.6) is what actually turns
// transmission on, so nothing goes out before the first evaluation.
func (ps *PortState) EnableTransmit(typ string, nominalPeriodMs int64) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.transmitSlots) >= maxTransmitSlots {
		return fmt.Errorf("nmea: port %s transmit table full (max %d)", ps.Name, maxTransmitSlots)
	}
	maxAgeMs := int64(4000)
	if field, ok := typeMaxAge[typ]; ok {
		maxAgeMs = boatdata.MaxAgeWindows[field]
	}
	ps.transmitSlots = append(ps.transmitSlots, &TransmitSlot{
		Type:            typ,
		NominalPeriodMs: nominalPeriodMs,
		CurrentPeriodMs: nominalPeriodMs,
		MaxAgeMs:        maxAgeMs,
	})
	return nil
}

// EnableReceive registers a callback for a received sentence type, in
// addition to the static decode dispatch every registered type already
// gets. cb may be nil if the caller only wants the decoder's snapshot
// writes and no direct notification.
func (ps *PortState) EnableReceive(typ string, cb ReceiveCallback) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.receiveTypes) >= maxReceiveTypes {
		if _, exists := ps.receiveTypes[typ]; !exists {
			return fmt.Errorf("nmea: port %s receive table full (max %d)", ps.Name, maxReceiveTypes)
		}
	}
	ps.receiveTypes[typ] = cb
	return nil
}

// TransmitEnabled reports whether typ's transmit slot on this port is
// currently enabled, for tests and diagnostics.
func (ps *PortState) TransmitEnabled(typ string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, slot := range ps.transmitSlots {
		if slot.Type == typ {
			return slot.Enabled
		}
	}
	return false
}

// TriggerTransmit sets typ's one-shot transmit_now flag on this port,
// for receive-triggered forwarding (spec.md §4.3's scheduling loop step
// 1): a sentence decoded off one port can request an out-of-band,
// ahead-of-schedule transmission on another. Reports whether a matching
// slot was found.
func (ps *PortState) TriggerTransmit(typ string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, slot := range ps.transmitSlots {
		if slot.Type == typ {
			slot.TransmitNow = true
			return true
		}
	}
	return false
}

// OverflowObserver is the narrow counter sink the scheduler reports
// write back pressure to; nil disables instrumentation.
type OverflowObserver interface {
	ObserveNMEAOverflow(port string)
}

// Scheduler drives the transmit tick and receive loop for every
// registered port against a shared boat-data snapshot.
type Scheduler struct {
	snap  *boatdata.Snapshot
	clock clock.Clock
	log   *logrus.Logger

	mu    sync.Mutex
	ports map[string]*PortState

	// Metrics is an optional overflow-event counter sink.
	Metrics OverflowObserver
}

// NewScheduler constructs a scheduler bound to a snapshot, clock and
// logger; ports are registered afterward with AddPort.
func NewScheduler(snap *boatdata.Snapshot, clk clock.Clock, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		snap:  snap,
		clock: clk,
		log:   log,
		ports: make(map[string]*PortState),
	}
}

// AddPort registers a serial port under name, transmitting with the
// given talker ID prefix ("GP", "II", ...).
func (s *Scheduler) AddPort(name, talker string, port serialport.Port) *PortState {
	ps := &PortState{
		Name:         name,
		Talker:       talker,
		Port:         port,
		receiveTypes: make(map[string]ReceiveCallback),
	}
	s.mu.Lock()
	s.ports[name] = ps
	s.mu.Unlock()
	return ps
}

// SetTransmitEnabled toggles every registered slot of the given
// sentence type across every port. The orchestrator calls this once a
// second, after evaluating spec.md §4.6's per-type freshness table
// against the snapshot; Tick itself never decides freshness.
func (s *Scheduler) SetTransmitEnabled(typ string, enabled bool) {
	s.mu.Lock()
	ports := make([]*PortState, 0, len(s.ports))
	for _, ps := range s.ports {
		ports = append(ports, ps)
	}
	s.mu.Unlock()

	for _, ps := range ports {
		ps.mu.Lock()
		for _, slot := range ps.transmitSlots {
			if slot.Type == typ {
				slot.Enabled = enabled
			}
		}
		ps.mu.Unlock()
	}
}

// Tick runs one transmit pass over every port: any slot whose period
// has elapsed gets an encode attempt; a write failure or a closed port
// counts as back pressure and grows that slot's period, a clean write
// shrinks it back toward nominal.
func (s *Scheduler) Tick(nowMs int64) {
	s.mu.Lock()
	ports := make([]*PortState, 0, len(s.ports))
	for _, ps := range s.ports {
		ports = append(ports, ps)
	}
	s.mu.Unlock()

	for _, ps := range ports {
		s.tickPort(ps, nowMs)
	}
}

// tickPort runs spec.md §4.3's three-step per-port cycle: drain
// anything left over from the prior cycle, emit one-shot transmit_now
// sentences, then walk the periodic schedule. Any overflow stops the
// tick immediately so a partial write's tail is never interleaved with
// another sentence on the same port (invariant I5).
func (s *Scheduler) tickPort(ps *PortState, nowMs int64) {
	if !s.drainPending(ps) {
		return
	}
	if s.tickOneShot(ps, nowMs) {
		return
	}
	s.tickPeriodic(ps, nowMs)
}

// drainPending flushes ps.pendingSend, the unsent tail of a prior
// overflowed write. Only once it is empty does the tick move on to new
// sentences (spec.md §4.3's "Per-port buffers").
func (s *Scheduler) drainPending(ps *PortState) bool {
	ps.mu.Lock()
	pending := ps.pendingSend
	ps.mu.Unlock()
	if len(pending) == 0 {
		return true
	}
	return s.attemptWrite(ps, pending)
}

// tickOneShot emits every slot with TransmitNow set, clearing the flag
// before the attempt so a slow callback never double-fires it. Reports
// whether an overflow occurred, in which case the caller stops the tick.
func (s *Scheduler) tickOneShot(ps *PortState, nowMs int64) bool {
	ps.mu.Lock()
	slots := ps.transmitSlots
	ps.mu.Unlock()

	for _, slot := range slots {
		if !slot.TransmitNow {
			continue
		}
		slot.TransmitNow = false
		// A one-shot send leaves the periodic due time where it was.
		lastSentMs := slot.LastSentMs
		sent := s.encodeAndSend(ps, slot, nowMs)
		slot.LastSentMs = lastSentMs
		if !sent {
			return true
		}
	}
	return false
}

// tickPeriodic walks the due-time schedule: any enabled slot whose
// period has elapsed gets an encode attempt, stopping at the first
// overflow.
func (s *Scheduler) tickPeriodic(ps *PortState, nowMs int64) {
	ps.mu.Lock()
	slots := ps.transmitSlots
	ps.mu.Unlock()

	for _, slot := range slots {
		if !slot.Enabled {
			continue
		}
		if nowMs-slot.LastSentMs < slot.CurrentPeriodMs {
			continue
		}
		if !s.encodeAndSend(ps, slot, nowMs) {
			return
		}
	}
}

// encodeAndSend encodes slot's sentence (if the snapshot has fresh
// enough data) and attempts to send it, growing or shrinking the
// slot's period on the outcome. Reports false only on a genuine
// overflow, so the caller knows to stop the tick.
func (s *Scheduler) encodeAndSend(ps *PortState, slot *TransmitSlot, nowMs int64) bool {
	enc, ok := Encoders[slot.Type]
	if !ok {
		return true
	}
	body, ready := enc(ps.Talker, s.snap, nowMs, slot.MaxAgeMs)
	slot.LastSentMs = nowMs
	if !ready {
		return true
	}
	sentence := Frame(body)
	if s.attemptWrite(ps, []byte(sentence)) {
		slot.shrink()
		return true
	}
	slot.grow()
	return false
}

// attemptWrite writes data to the port, retaining any unwritten
// remainder in ps.pendingSend (a short write counts as overflow just
// like a hard error: both leave bytes unsent). Reports whether the
// whole of data made it out.
func (s *Scheduler) attemptWrite(ps *PortState, data []byte) bool {
	n, err := ps.Port.Write(data)
	if n < 0 {
		n = 0
	}
	if n > len(data) {
		n = len(data)
	}
	remainder := data[n:]

	if len(remainder) == 0 && err == nil {
		ps.mu.Lock()
		ps.pendingSend = nil
		ps.mu.Unlock()
		return true
	}

	ps.mu.Lock()
	ps.pendingSend = append([]byte(nil), remainder...)
	ps.mu.Unlock()
	if s.log != nil {
		s.log.WithError(err).WithField("port", ps.Name).WithField("unsent", len(remainder)).
			Warn("nmea transmit write incomplete, backing off")
	}
	if s.Metrics != nil {
		s.Metrics.ObserveNMEAOverflow(ps.Name)
	}
	return false
}

// ReadLoop reads newline-terminated sentences from the port until ctx
// is canceled or the port returns an error, dispatching each to the
// static decoder for its type (if registered) and then to any
// application-level receive callback, ignoring unrecognized types and
// malformed sentences.
func (s *Scheduler) ReadLoop(ctx context.Context, ps *PortState) error {
	reader := bufio.NewReaderSize(ps.Port, MaxSentenceLen*2)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if line == "" {
				return err
			}
		}
		sentence, perr := Parse(line)
		if perr != nil {
			if s.log != nil {
				s.log.WithError(perr).WithField("port", ps.Name).Debug("nmea: dropping malformed sentence")
			}
			continue
		}
		ps.mu.Lock()
		cb, registered := ps.receiveTypes[sentence.Type]
		ps.mu.Unlock()
		if !registered {
			continue
		}
		if decode, ok := Decoders[sentence.Type]; ok {
			if _, derr := decode(sentence.Fields, s.snap, s.clock.NowMs()); derr != nil && s.log != nil {
				s.log.WithError(derr).WithField("type", sentence.Type).Debug("nmea: decode error")
			}
		}
		if cb != nil {
			cb(sentence)
		}
	}
}
