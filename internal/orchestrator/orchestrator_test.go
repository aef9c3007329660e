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

package orchestrator

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/collaborators"
	"github.com/miniwinwm/bluebridge/internal/nmea"
	"github.com/miniwinwm/bluebridge/internal/serialport"
	"github.com/miniwinwm/bluebridge/internal/settings"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestOrchestrator() (*Orchestrator, *nmea.Scheduler, *nmea.PortState, *collaborators.FakeLED, *collaborators.FakePressureSensor, *collaborators.FakeCANWriter, *collaborators.FakeWMMCalculator) {
	snap := boatdata.New()
	clk := clock.NewFake(0)
	scheduler := nmea.NewScheduler(snap, clk, discardLogger())
	a, _ := serialport.Pair()
	port := scheduler.AddPort("test", "GP", a)

	store := settings.New(&collaborators.FakePersistence{})
	led := &collaborators.FakeLED{}
	pressure := &collaborators.FakePressureSensor{}
	canOut := &collaborators.FakeCANWriter{}
	wmm := &collaborators.FakeWMMCalculator{}

	o := New(snap, scheduler, store, pressure, canOut, wmm, led, clk, discardLogger())
	return o, scheduler, port, led, pressure, canOut, wmm
}

func TestDecayGMTAdvancesWhenNoFresherObservation(t *testing.T) {
	o, _, _, _, _, _, _ := newTestOrchestrator()
	o.snap.GMT.Set(boatdata.TimeOfDay{Hour: 10, Minute: 0, Second: 0}, 0)

	o.decayGMT(1000)
	tod, _ := o.snap.GMT.Get()
	require.Equal(t, boatdata.TimeOfDay{Hour: 10, Minute: 0, Second: 1}, tod)

	o.decayGMT(2000)
	tod, _ = o.snap.GMT.Get()
	require.Equal(t, boatdata.TimeOfDay{Hour: 10, Minute: 0, Second: 2}, tod)
}

func TestDecayGMTSaturatesAtEndOfDay(t *testing.T) {
	o, _, _, _, _, _, _ := newTestOrchestrator()
	o.snap.GMT.Set(boatdata.TimeOfDay{Hour: 23, Minute: 59, Second: 59}, 0)

	o.decayGMT(1000)
	tod, _ := o.snap.GMT.Get()
	require.Equal(t, boatdata.TimeOfDay{Hour: 23, Minute: 59, Second: 59}, tod)
}

func TestDecayGMTDefersToFresherObservation(t *testing.T) {
	o, _, _, _, _, _, _ := newTestOrchestrator()
	o.snap.GMT.Set(boatdata.TimeOfDay{Hour: 10, Minute: 0, Second: 0}, 0)
	o.decayGMT(1000)

	// A real decoder write lands between ticks, stamped later than
	// anything decayGMT itself wrote.
	o.snap.GMT.Set(boatdata.TimeOfDay{Hour: 12, Minute: 30, Second: 0}, 1500)
	o.decayGMT(2000)

	tod, _ := o.snap.GMT.Get()
	require.Equal(t, boatdata.TimeOfDay{Hour: 12, Minute: 30, Second: 0}, tod, "a fresher observation must not be decayed over")
}

func TestEvaluateTransmitEnablesGatesDPTOnDepthOnly(t *testing.T) {
	o, scheduler, port, _, _, _, _ := newTestOrchestrator()
	require.NoError(t, port.EnableTransmit("DPT", 1000))

	o.evaluateTransmitEnables(1000)
	require.False(t, port.TransmitEnabled("DPT"))

	o.snap.Depth.Set(3.2, 1000)
	o.evaluateTransmitEnables(1000)
	require.True(t, port.TransmitEnabled("DPT"))
	_ = scheduler
}

func TestEvaluateTransmitEnablesRMCRequiresAllOfPositionTimeAndVelocity(t *testing.T) {
	o, _, port, _, _, _, _ := newTestOrchestrator()
	require.NoError(t, port.EnableTransmit("RMC", 1000))

	now := int64(5000)
	o.snap.GMT.Set(boatdata.TimeOfDay{}, now)
	o.snap.Date.Set(boatdata.Date{Year: 2024, Month: 1, Day: 1}, now)
	o.snap.SOG.Set(6.0, now)
	o.snap.COG.Set(180, now)
	o.snap.Latitude.Set(50.5, now)
	// Longitude deliberately left stale.
	o.evaluateTransmitEnables(now)
	require.False(t, port.TransmitEnabled("RMC"))

	o.snap.Longitude.Set(-1.25, now)
	o.evaluateTransmitEnables(now)
	require.True(t, port.TransmitEnabled("RMC"))
}

func TestEvaluateTransmitEnablesHDMRequiresHeadingAndWMM(t *testing.T) {
	o, _, port, _, _, _, _ := newTestOrchestrator()
	require.NoError(t, port.EnableTransmit("HDM", 1000))

	now := int64(1000)
	o.snap.HeadingTrue.Set(90, now)
	o.evaluateTransmitEnables(now)
	require.False(t, port.TransmitEnabled("HDM"), "heading fresh but WMM never calculated")

	o.snap.WMMCalculated.Set(0, now)
	o.evaluateTransmitEnables(now)
	require.True(t, port.TransmitEnabled("HDM"))
}

func TestTickSecondBlinksLEDOnlyWhenStarted(t *testing.T) {
	o, _, _, led, _, _, _ := newTestOrchestrator()
	o.store.SetStarted(false)
	o.tickSecond(1000)
	require.Equal(t, 0, led.TickBlinks)

	o.store.SetStarted(true)
	o.tickSecond(2000)
	require.Equal(t, 1, led.TickBlinks)
}

func TestDrainPressureWritesSnapshotAndEmitsPGN(t *testing.T) {
	o, _, _, _, pressure, canOut, _ := newTestOrchestrator()
	pressure.Queue(collaborators.PressureSample{HectoPascals: 1013.2})

	o.drainPressure(1000)

	v, observedAtMs := o.snap.Pressure.Get()
	require.InDelta(t, 1013.2, v, 0.01)
	require.Equal(t, int64(1000), observedAtMs)
	require.Len(t, canOut.Written, 1)
	require.Equal(t, uint32(130314), canOut.Written[0].PGN)
}

func TestDrainPressureNoSampleIsNoop(t *testing.T) {
	o, _, _, _, _, canOut, _ := newTestOrchestrator()
	o.drainPressure(1000)
	require.Empty(t, canOut.Written)
}

func TestRefreshWMMSkipsWhenPositionOrDateStale(t *testing.T) {
	o, _, _, _, _, _, wmm := newTestOrchestrator()
	wmm.Result = collaborators.WMMResult{VariationDegrees: 4.0}

	o.refreshWMM(1000)
	require.False(t, o.snap.WMMFresh(1000))
}

func TestRefreshWMMComputesWhenFreshAndStaleWMM(t *testing.T) {
	o, _, _, _, _, _, wmm := newTestOrchestrator()
	wmm.Result = collaborators.WMMResult{VariationDegrees: 4.0}

	now := int64(1000)
	o.snap.Latitude.Set(50.5, now)
	o.snap.Longitude.Set(-1.25, now)
	o.snap.Date.Set(boatdata.Date{Year: 2024, Month: 6, Day: 15}, now)

	o.refreshWMM(now)
	require.True(t, o.snap.WMMFresh(now))
	v, _ := o.snap.MagVariation.Get()
	require.Equal(t, float32(4.0), v)
}

func TestRefreshWMMSkipsWhenAlreadyFresh(t *testing.T) {
	o, _, _, _, _, _, wmm := newTestOrchestrator()
	now := int64(1000)
	o.snap.WMMCalculated.Set(0, now)
	wmm.Result = collaborators.WMMResult{VariationDegrees: 99}

	o.refreshWMM(now)
	v, _ := o.snap.MagVariation.Get()
	require.NotEqual(t, float32(99), v, "must not recompute while the existing calculation is still fresh")
}
