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

package publisher

import (
	"fmt"
	"strconv"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/cmdtoken"
	"github.com/miniwinwm/bluebridge/internal/settings"
)

// handleToken applies one parsed SMS command token against settings,
// replying by SMS where the original does. It reports whether the key
// was recognized, regardless of whether the value itself was valid.
func (c *Controller) handleToken(tok cmdtoken.Token) bool {
	switch tok.Key {
	case "APN":
		c.update(func(nv *settings.NonVolatile) { nv.APN = tok.Value })
		c.rebootNeeded = true
		return true

	case "USER":
		c.update(func(nv *settings.NonVolatile) { nv.APNUser = tok.Value })
		c.rebootNeeded = true
		return true

	case "PASS":
		c.update(func(nv *settings.NonVolatile) { nv.APNPassword = tok.Value })
		c.rebootNeeded = true
		return true

	case "BROKER":
		c.update(func(nv *settings.NonVolatile) { nv.BrokerAddress = tok.Value })
		c.rebootNeeded = true
		return true

	case "PORT":
		if port, err := strconv.Atoi(tok.Value); err == nil {
			c.update(func(nv *settings.NonVolatile) { nv.BrokerPort = port })
		}
		return true

	case "PERIOD":
		if seconds, err := cmdtoken.ParsePeriod(tok.Value); err == nil && seconds >= 5 {
			c.update(func(nv *settings.NonVolatile) { nv.PeriodSeconds = seconds })
			c.publishingStartNeeded = true
		}
		return true

	case "SETTINGS":
		c.sendSMS(c.settingsReply())
		return true

	case "CODE":
		c.sendSMS(fmt.Sprintf("Code=%08X", c.hashedIMEI))
		return true

	case "START":
		c.store.SetStarted(true)
		c.publishingStartNeeded = true
		c.sendSMS("Started")
		return true

	case "STOP":
		c.store.SetStarted(false)
		c.sendSMS("Stopped")
		return true

	case "RESET":
		if err := c.store.FactoryReset(); err != nil {
			c.log.Warnf("publisher: factory reset: %v", err)
		}
		c.rebootNeeded = true
		c.sendSMS("Reset - restarting")
		return true

	case "RESTART":
		c.rebootNeeded = true
		c.sendSMS("Restarting")
		return true

	case "POS":
		c.sendSMS(c.positionReply())
		return true

	case "DATA":
		c.sendSMS(c.dataReply())
		return true

	default:
		return false
	}
}

// settingsReply renders the current settings as a multi-line SMS body
// (Period as "<n>h<n>m<n>s", matching util_seconds_to_hms), in the
// same field order the original's SETTINGS reply uses.
func (c *Controller) settingsReply() string {
	nv := c.store.NonVolatile()
	state := "Stopped"
	if c.store.Volatile().Started {
		state = "Started"
	}
	return fmt.Sprintf(
		"APN=%s\nUser=%s\nPass=%s\nBroker=%s\nPort=%d\nPeriod=%s\n%s",
		nv.APN, nv.APNUser, nv.APNPassword, nv.BrokerAddress, nv.BrokerPort,
		cmdtoken.FormatPeriod(nv.PeriodSeconds), state,
	)
}

// positionReply renders a Google Maps link if position is fresh, else
// the same "not available" text the original sends.
func (c *Controller) positionReply() string {
	now := c.clk.NowMs()
	lat, latAt := c.snap.Latitude.Get()
	lon, lonAt := c.snap.Longitude.Get()
	latFresh := boatdata.Fresh(latAt, now, boatdata.MaxAgeWindows[boatdata.FieldLatitude])
	lonFresh := boatdata.Fresh(lonAt, now, boatdata.MaxAgeWindows[boatdata.FieldLongitude])
	if !latFresh || !lonFresh {
		return "Position not available"
	}
	return fmt.Sprintf("maps.google.com/maps?t=k&q=loc:%.8f+%.8f", lat, lon)
}

// dataReply renders a per-field human-readable dump, "?" for any
// field that isn't fresh.
func (c *Controller) dataReply() string {
	now := c.clk.NowMs()
	return "" +
		dataLine("Depth", c.snap.Depth, boatdata.FieldDepth, "m", now) +
		dataLine("Boatspeed", c.snap.BoatSpeed, boatdata.FieldBoatSpeed, "kt", now) +
		dataLineUint("Heading", c.snap.HeadingTrue, boatdata.FieldHeadingTrue, "T", now) +
		dataLine("Trip", c.snap.Trip, boatdata.FieldTrip, "Nm", now) +
		dataLineUint("Log", c.snap.Log, boatdata.FieldLog, "Nm", now) +
		dataLine("SOG", c.snap.SOG, boatdata.FieldSOG, "kt", now) +
		dataLineCOG(c.snap, now) +
		dataLine("Temp", c.snap.SeawaterTemp, boatdata.FieldSeawaterTemp, "C", now) +
		dataLine("TWS", c.snap.TWS, boatdata.FieldTWS, "kt", now) +
		dataLine("TWA", c.snap.TWA, boatdata.FieldTWA, "", now) +
		dataLine("AWS", c.snap.AWS, boatdata.FieldAWS, "kt", now) +
		dataLine("AWA", c.snap.AWA, boatdata.FieldAWA, "", now)
}

func dataLine(label string, cell *boatdata.FloatCell, field boatdata.Field, unit string, nowMs int64) string {
	v, observedAtMs := cell.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, boatdata.MaxAgeWindows[field]) {
		return label + "=?\n"
	}
	if unit == "" {
		return fmt.Sprintf("%s=%.1f\n", label, v)
	}
	return fmt.Sprintf("%s=%.1f %s\n", label, v, unit)
}

func dataLineUint(label string, cell *boatdata.FloatCell, field boatdata.Field, unit string, nowMs int64) string {
	v, observedAtMs := cell.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, boatdata.MaxAgeWindows[field]) {
		return label + "=?\n"
	}
	return fmt.Sprintf("%s=%d %s\n", label, int(v), unit)
}

func dataLineCOG(snap *boatdata.Snapshot, nowMs int64) string {
	v, observedAtMs := snap.COG.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, boatdata.MaxAgeWindows[boatdata.FieldCOG]) {
		return "COG=?\n"
	}
	return fmt.Sprintf("COG=%d T\n", uint16(v))
}
