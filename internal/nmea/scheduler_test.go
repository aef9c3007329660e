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
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSchedulerTickTransmitsWhenFresh(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	a, b := serialport.Pair()
	ps := s.AddPort("depthsounder", "II", a)
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	reader := bufio.NewReader(b)
	lineCh := make(chan string, 1)
	go func() {
		line, _ := reader.ReadString('\n')
		lineCh <- line
	}()

	s.Tick(1000)
	select {
	case line := <-lineCh:
		require.Contains(t, line, "IIDPT,7.2")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transmitted sentence")
	}
}

func TestSchedulerTickSuppressesWhenStale(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	a, _ := serialport.Pair()
	ps := s.AddPort("depthsounder", "II", a)
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	// Must not block: no data available means no write is attempted.
	s.Tick(1000)
	slot := ps.transmitSlots[0]
	require.Equal(t, int64(1000), slot.CurrentPeriodMs)
}

func TestSchedulerTickSuppressesWhenDisabled(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	a, _ := serialport.Pair()
	ps := s.AddPort("depthsounder", "II", a)
	require.NoError(t, ps.EnableTransmit("DPT", 1000))

	// Fresh data, but the orchestrator hasn't enabled the slot yet:
	// must not block on an unread pipe.
	s.Tick(0)
	require.Equal(t, int64(0), ps.transmitSlots[0].LastSentMs)
}

func TestSetTransmitEnabledTogglesAcrossAllPorts(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())
	a, _ := serialport.Pair()
	b, _ := serialport.Pair()
	p1 := s.AddPort("p1", "GP", a)
	p2 := s.AddPort("p2", "II", b)
	require.NoError(t, p1.EnableTransmit("DPT", 1000))
	require.NoError(t, p2.EnableTransmit("DPT", 1000))

	s.SetTransmitEnabled("DPT", true)
	require.True(t, p1.transmitSlots[0].Enabled)
	require.True(t, p2.transmitSlots[0].Enabled)

	s.SetTransmitEnabled("DPT", false)
	require.False(t, p1.transmitSlots[0].Enabled)
	require.False(t, p2.transmitSlots[0].Enabled)
}

func TestTransmitSlotGrowAndShrink(t *testing.T) {
	slot := &TransmitSlot{NominalPeriodMs: 1000, CurrentPeriodMs: 1000}
	slot.grow()
	require.Equal(t, int64(1010), slot.CurrentPeriodMs)
	slot.shrink()
	require.Less(t, slot.CurrentPeriodMs, int64(1010))
	for i := 0; i < 1000; i++ {
		slot.shrink()
	}
	require.Equal(t, slot.NominalPeriodMs, slot.CurrentPeriodMs)
}

func TestEnableTransmitEnforcesSlotLimit(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())
	a, _ := serialport.Pair()
	ps := s.AddPort("p", "GP", a)
	for i := 0; i < maxTransmitSlots; i++ {
		require.NoError(t, ps.EnableTransmit(fmt.Sprintf("T%02d", i), 1000))
	}
	require.Error(t, ps.EnableTransmit("OVER", 1000))
}

func TestEnableReceiveEnforcesTypeLimit(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())
	a, _ := serialport.Pair()
	ps := s.AddPort("p", "GP", a)
	for i := 0; i < maxReceiveTypes; i++ {
		require.NoError(t, ps.EnableReceive(fmt.Sprintf("T%02d", i), nil))
	}
	require.Error(t, ps.EnableReceive("OVER", nil))
}

func TestReadLoopDecodesAndInvokesCallback(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(5000)
	s := NewScheduler(snap, clk, discardLogger())

	a, b := serialport.Pair()
	ps := s.AddPort("depthsounder", "II", a)

	var received ParsedSentence
	done := make(chan struct{})
	require.NoError(t, ps.EnableReceive("DPT", func(p ParsedSentence) {
		received = p
		close(done)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.ReadLoop(ctx, ps) }()

	_, err := b.Write([]byte(Frame("IIDPT,9.1,0.0,")))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for receive callback")
	}
	require.Equal(t, "DPT", received.Type)
	v, ts := snap.Depth.Get()
	require.InDelta(t, 9.1, v, 0.01)
	require.EqualValues(t, 5000, ts)
}

// failPort always errors on Write, simulating a stuck or disconnected
// downstream device to drive the scheduler's back-pressure path.
type failPort struct{}

func (failPort) Read([]byte) (int, error)           { return 0, fmt.Errorf("nmea: test read not supported") }
func (failPort) Write([]byte) (int, error)          { return 0, fmt.Errorf("nmea: simulated write failure") }
func (failPort) Close() error                       { return nil }
func (failPort) SetReadTimeout(time.Duration) error { return nil }

type fakeOverflowObserver struct {
	ports []string
}

func (f *fakeOverflowObserver) ObserveNMEAOverflow(port string) {
	f.ports = append(f.ports, port)
}

func TestTickObservesOverflowOnWriteFailure(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())
	obs := &fakeOverflowObserver{}
	s.Metrics = obs

	ps := s.AddPort("depthsounder", "II", failPort{})
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	s.Tick(1000)
	require.Equal(t, []string{"depthsounder"}, obs.ports)
}

func TestTickSkipsOverflowObserverWhenNil(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	ps := s.AddPort("depthsounder", "II", failPort{})
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	require.NotPanics(t, func() { s.Tick(1000) })
}

// shortWritePort accepts only the first `accept` bytes of its first
// Write call (a genuine partial write, no error) and every byte of any
// subsequent call, simulating a downstream device whose buffer frees up
// between ticks.
type shortWritePort struct {
	accept int
	writes [][]byte
}

func (p *shortWritePort) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	p.writes = append(p.writes, cp)
	if p.accept > 0 && p.accept < len(b) {
		n := p.accept
		p.accept = 0
		return n, nil
	}
	return len(b), nil
}

func (p *shortWritePort) Read([]byte) (int, error) {
	return 0, fmt.Errorf("nmea: test read not supported")
}
func (p *shortWritePort) Close() error                       { return nil }
func (p *shortWritePort) SetReadTimeout(time.Duration) error { return nil }

// TestTickRetainsPartialWriteTail matches seed scenario 5 verbatim: a
// port accepts part of an encoded sentence, the unsent tail is retained
// in the pending-send buffer, and the next tick's first transmission is
// that tail, not a new sentence.
func TestTickRetainsPartialWriteTail(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())
	obs := &fakeOverflowObserver{}
	s.Metrics = obs

	sentence := []byte(Frame("IIDPT,7.2,0.0,"))
	accept := len(sentence) - 5 // leave a 5-byte tail unsent, as spec.md's 40-of-52 scenario does

	port := &shortWritePort{accept: accept}
	ps := s.AddPort("depthsounder", "II", port)
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	s.Tick(1000)

	require.Len(t, port.writes, 1)
	require.Equal(t, sentence, port.writes[0])
	require.Equal(t, sentence[accept:], ps.pendingSend)
	require.Equal(t, []string{"depthsounder"}, obs.ports)
	// Back pressure widens the period immediately on overflow.
	require.Equal(t, int64(1010), ps.transmitSlots[0].CurrentPeriodMs)

	// The next tick must drain the retained tail before anything else,
	// and the due slot isn't due again yet so no new sentence competes.
	s.Tick(1100)
	require.Len(t, port.writes, 2)
	require.Equal(t, sentence[accept:], port.writes[1])
	require.Nil(t, ps.pendingSend)
}

// TestTickStopsOnPendingOverflow verifies that when the retained tail
// itself cannot be fully drained, the tick stops rather than also
// attempting a new, due sentence on the same port (invariant I5: never
// two sentences in flight on one port at once).
func TestTickStopsOnPendingOverflow(t *testing.T) {
	snap := boatdata.New()
	snap.Depth.Set(7.2, 0)
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	port := &shortWritePort{}
	ps := s.AddPort("depthsounder", "II", port)
	ps.pendingSend = []byte("tail")
	port.accept = 1 // the first write takes only one byte of the tail
	require.NoError(t, ps.EnableTransmit("DPT", 1000))
	s.SetTransmitEnabled("DPT", true)

	s.Tick(1000)

	require.Len(t, port.writes, 1)
	require.Equal(t, []byte("tail"), port.writes[0])
	require.NotEmpty(t, ps.pendingSend)
	// The due DPT slot never got a chance to transmit this cycle.
	require.Equal(t, int64(0), ps.transmitSlots[0].LastSentMs)
}

// TestTriggerTransmitFiresOneShotAheadOfSchedule matches spec.md's
// scheduling loop step 1: a receive-triggered forward goes out before
// the periodic pass, fires exactly once, and doesn't disturb the
// periodic slot's own due time.
func TestTriggerTransmitFiresOneShotAheadOfSchedule(t *testing.T) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	s := NewScheduler(snap, clk, discardLogger())

	a, b := serialport.Pair()
	ps := s.AddPort("chartplotter", "II", a)
	require.NoError(t, ps.EnableTransmit("DPT", 60000))
	// Leave the slot disabled and far from due: only the one-shot flag
	// should cause a transmission this tick.
	snap.Depth.Set(3.4, 0)

	require.True(t, ps.TriggerTransmit("DPT"))
	require.False(t, ps.TriggerTransmit("NOPE"))

	reader := bufio.NewReader(b)
	lineCh := make(chan string, 1)
	go func() {
		line, _ := reader.ReadString('\n')
		lineCh <- line
	}()

	s.Tick(0)
	select {
	case line := <-lineCh:
		require.Contains(t, line, "IIDPT,3.4")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for one-shot transmission")
	}

	require.False(t, ps.transmitSlots[0].TransmitNow)

	// A second, untriggered tick must not re-fire: the port stays quiet.
	s.Tick(1000)
	select {
	case line := <-lineCh:
		t.Fatalf("unexpected second transmission: %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}
