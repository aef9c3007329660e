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

// Package orchestrator drives the gateway's three background timers
// (spec §4.6): a 25ms NMEA scheduler tick, a 1s GMT-decay and
// transmit-enable pass, and an 8s pressure-drain/WMM pass.
package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/busingest"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/collaborators"
	"github.com/miniwinwm/bluebridge/internal/nmea"
	"github.com/miniwinwm/bluebridge/internal/settings"
)

const (
	fastTickPeriod   = 25 * time.Millisecond
	secondTickPeriod = time.Second
	slowTickPeriod   = 8 * time.Second
)

// Orchestrator owns the periodic work that isn't driven by the modem
// or the publisher: keeping the NMEA scheduler ticking, decaying GMT
// and evaluating transmit-enable decisions, and draining the pressure
// sensor and WMM calculator.
type Orchestrator struct {
	snap      *boatdata.Snapshot
	scheduler *nmea.Scheduler
	store     *settings.Store
	pressure  collaborators.PressureSensor
	canOut    collaborators.CANWriter
	wmm       collaborators.WMMCalculator
	led       collaborators.LED
	clk       clock.Clock
	log       *logrus.Logger

	lastGMTStampMs int64
}

// New builds an Orchestrator. pressure, canOut and wmm may be nil: the
// corresponding 8s work is simply skipped (a boat without a pressure
// sensor, for instance, still runs the scheduler tick and the
// transmit-enable table).
func New(snap *boatdata.Snapshot, scheduler *nmea.Scheduler, store *settings.Store, pressure collaborators.PressureSensor, canOut collaborators.CANWriter, wmm collaborators.WMMCalculator, led collaborators.LED, clk clock.Clock, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		snap:      snap,
		scheduler: scheduler,
		store:     store,
		pressure:  pressure,
		canOut:    canOut,
		wmm:       wmm,
		led:       led,
		clk:       clk,
		log:       log,
	}
}

// Run starts the three timers and blocks until ctx is canceled or one
// of them returns an error. There is none today (every tick function
// is self-contained and logs its own failures), but the errgroup shape
// matches how the rest of the codebase supervises sibling goroutines.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return o.runTicker(ctx, fastTickPeriod, o.tickFast) })
	g.Go(func() error { return o.runTicker(ctx, secondTickPeriod, o.tickSecond) })
	g.Go(func() error { return o.runTicker(ctx, slowTickPeriod, o.tickSlow) })

	return g.Wait()
}

func (o *Orchestrator) runTicker(ctx context.Context, period time.Duration, tick func(nowMs int64)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick(o.clk.NowMs())
		}
	}
}

// tickFast is the 25ms NMEA scheduler tick (spec §4.6).
func (o *Orchestrator) tickFast(nowMs int64) {
	o.scheduler.Tick(nowMs)
}

// tickSecond decays GMT, re-evaluates every transmit-enable decision,
// and blinks the status LED while publishing is enabled (spec §4.6).
func (o *Orchestrator) tickSecond(nowMs int64) {
	o.decayGMT(nowMs)
	o.evaluateTransmitEnables(nowMs)
	if o.store != nil && o.store.Volatile().Started {
		o.led.TickBlink()
	}
}

// decayGMT advances the in-memory GMT by one second when nothing
// fresher has landed since the last tick, saturating at 23:59:59 to
// avoid rolling the date over without a fresh date observation. A
// write from the bus or NMEA decoders between ticks is detected by its
// observed-at timestamp moving past the last stamp this function
// itself wrote, and is left untouched.
func (o *Orchestrator) decayGMT(nowMs int64) {
	tod, observedAtMs := o.snap.GMT.Get()
	if observedAtMs > o.lastGMTStampMs {
		o.lastGMTStampMs = observedAtMs
		return
	}
	o.snap.GMT.Set(advanceOneSecond(tod), nowMs)
	o.lastGMTStampMs = nowMs
}

func advanceOneSecond(t boatdata.TimeOfDay) boatdata.TimeOfDay {
	if t.Hour == 23 && t.Minute == 59 && t.Second == 59 {
		return t
	}
	t.Second++
	if t.Second == 60 {
		t.Second = 0
		t.Minute++
		if t.Minute == 60 {
			t.Minute = 0
			t.Hour++
		}
	}
	return t
}

// evaluateTransmitEnables applies the decision table from spec §4.6 to
// every registered port's transmit slots. GGA and VTG aren't named in
// that table; GGA is gated on GMT and position freshness and VTG on
// SOG/COG freshness, the fields their encoders read, so registering
// them never leaves a permanently-dead slot.
func (o *Orchestrator) evaluateTransmitEnables(nowMs int64) {
	gmtFresh := o.snap.GMT.Fresh(boatdata.MaxAgeWindows[boatdata.FieldGMT], nowMs)
	dateFresh := o.snap.Date.Fresh(boatdata.MaxAgeWindows[boatdata.FieldDate], nowMs)
	sogFresh := o.snap.SOG.Fresh(boatdata.MaxAgeWindows[boatdata.FieldSOG], nowMs)
	cogFresh := o.snap.COG.Fresh(boatdata.MaxAgeWindows[boatdata.FieldCOG], nowMs)
	latFresh := o.snap.Latitude.Fresh(boatdata.MaxAgeWindows[boatdata.FieldLatitude], nowMs)
	lonFresh := o.snap.Longitude.Fresh(boatdata.MaxAgeWindows[boatdata.FieldLongitude], nowMs)
	depthFresh := o.snap.Depth.Fresh(boatdata.MaxAgeWindows[boatdata.FieldDepth], nowMs)
	boatSpeedFresh := o.snap.BoatSpeed.Fresh(boatdata.MaxAgeWindows[boatdata.FieldBoatSpeed], nowMs)
	seawaterFresh := o.snap.SeawaterTemp.Fresh(boatdata.MaxAgeWindows[boatdata.FieldSeawaterTemp], nowMs)
	tripFresh := o.snap.Trip.Fresh(boatdata.MaxAgeWindows[boatdata.FieldTrip], nowMs)
	logFresh := o.snap.Log.Fresh(boatdata.MaxAgeWindows[boatdata.FieldLog], nowMs)
	headingFresh := o.snap.HeadingTrue.Fresh(boatdata.MaxAgeWindows[boatdata.FieldHeadingTrue], nowMs)
	awaFresh := o.snap.AWA.Fresh(boatdata.MaxAgeWindows[boatdata.FieldAWA], nowMs)
	awsFresh := o.snap.AWS.Fresh(boatdata.MaxAgeWindows[boatdata.FieldAWS], nowMs)
	twaFresh := o.snap.TWA.Fresh(boatdata.MaxAgeWindows[boatdata.FieldTWA], nowMs)
	twsFresh := o.snap.TWS.Fresh(boatdata.MaxAgeWindows[boatdata.FieldTWS], nowMs)
	windDirMagFresh := o.snap.WindDirMag.Fresh(boatdata.MaxAgeWindows[boatdata.FieldWindDirMag], nowMs)
	windDirTrueFresh := o.snap.WindDirTrue.Fresh(boatdata.MaxAgeWindows[boatdata.FieldWindDirTrue], nowMs)
	pressureFresh := o.snap.Pressure.Fresh(boatdata.MaxAgeWindows[boatdata.FieldPressure], nowMs)
	wmmValid := o.snap.WMMFresh(nowMs)

	o.scheduler.SetTransmitEnabled("RMC", gmtFresh && dateFresh && sogFresh && cogFresh && latFresh && lonFresh)
	o.scheduler.SetTransmitEnabled("GGA", gmtFresh && latFresh && lonFresh)
	o.scheduler.SetTransmitEnabled("VTG", sogFresh && cogFresh)
	o.scheduler.SetTransmitEnabled("DPT", depthFresh)
	o.scheduler.SetTransmitEnabled("VHW", boatSpeedFresh)
	o.scheduler.SetTransmitEnabled("MTW", seawaterFresh)
	o.scheduler.SetTransmitEnabled("VLW", tripFresh || logFresh)
	o.scheduler.SetTransmitEnabled("HDT", headingFresh)
	o.scheduler.SetTransmitEnabled("HDM", headingFresh && wmmValid)
	o.scheduler.SetTransmitEnabled("MWV", awaFresh || awsFresh || twaFresh || twsFresh)
	o.scheduler.SetTransmitEnabled("MWD", (windDirMagFresh || windDirTrueFresh) && twsFresh)
	o.scheduler.SetTransmitEnabled("XDR", pressureFresh)
	o.scheduler.SetTransmitEnabled("MDA", pressureFresh)
}

// tickSlow drains one pressure sample (if available) into the
// snapshot and onto the CAN bus, then refreshes the WMM magnetic
// variation if it's stale and position/date allow a new calculation
// (spec §4.6).
func (o *Orchestrator) tickSlow(nowMs int64) {
	o.drainPressure(nowMs)
	o.refreshWMM(nowMs)
}

func (o *Orchestrator) drainPressure(nowMs int64) {
	if o.pressure == nil {
		return
	}
	sample, ok := o.pressure.ReadSample()
	if !ok {
		return
	}
	o.snap.Pressure.Set(sample.HectoPascals, nowMs)

	if o.canOut == nil {
		return
	}
	if err := o.canOut.Write(busingest.EncodePressure(sample.HectoPascals)); err != nil && o.log != nil {
		o.log.WithError(err).Warn("orchestrator: emit pressure pgn failed")
	}
}

func (o *Orchestrator) refreshWMM(nowMs int64) {
	if o.wmm == nil || o.snap.WMMFresh(nowMs) {
		return
	}
	lat, latAt := o.snap.Latitude.Get()
	lon, lonAt := o.snap.Longitude.Get()
	date, dateAt := o.snap.Date.Get()
	if !boatdata.Fresh(latAt, nowMs, boatdata.MaxAgeWindows[boatdata.FieldLatitude]) ||
		!boatdata.Fresh(lonAt, nowMs, boatdata.MaxAgeWindows[boatdata.FieldLongitude]) ||
		!boatdata.Fresh(dateAt, nowMs, boatdata.MaxAgeWindows[boatdata.FieldDate]) {
		return
	}

	result, err := o.wmm.Calculate(float64(lat), float64(lon), fractionalYear(date))
	if err != nil {
		if o.log != nil {
			o.log.WithError(err).Warn("orchestrator: wmm calculation failed")
		}
		return
	}
	o.snap.MagVariation.Set(result.VariationDegrees, nowMs)
	o.snap.WMMCalculated.Set(0, nowMs)
}

// fractionalYear renders a calendar date as a year plus the fraction
// of it elapsed, the input form the WMM collaborator expects.
func fractionalYear(d boatdata.Date) float64 {
	if d.Year == 0 {
		return 0
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	daysInYear := 365
	if isLeapYear(d.Year) {
		daysInYear = 366
	}
	return float64(d.Year) + float64(t.YearDay()-1)/float64(daysInYear)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
