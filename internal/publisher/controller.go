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

// Package publisher is the gateway's publish/command lifecycle (spec
// §4.5): bring the modem up, publish a composite data frame once per
// configured period, and service inbound SMS commands between
// publishes.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miniwinwm/bluebridge/internal/atmodem"
	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/cmdtoken"
	"github.com/miniwinwm/bluebridge/internal/collaborators"
	"github.com/miniwinwm/bluebridge/internal/mqtt"
	"github.com/miniwinwm/bluebridge/internal/settings"
)

// MaxFailedPublishCount is PUBLISHER_MAX_FAILED_COUNT: the number of
// consecutive failed publish attempts that triggers a restart request.
const MaxFailedPublishCount = 10

// mqttShutdownPeriodS: above this publishing period the MQTT session
// is closed between publishes to conserve modem resources.
const mqttShutdownPeriodS = 300

// Timeouts mirror the literal millisecond budgets publisher.c passes
// to each modem/MQTT call.
const (
	networkRegistrationBudgetMs = 60_000
	imeiTimeoutMs                = 1_000
	deleteAllSMSTimeoutMs        = 25_000
	setParamTimeoutMs            = 250
	deactivatePDPTimeoutMs       = 40_000
	activatePDPTimeoutMs         = 40_000
	getOwnIPTimeoutMs            = 250
	openTCPTimeoutMs             = 8_000
	mqttConnectTimeoutMs         = 20_000
	mqttHandleResponseTimeoutMs  = 5_000
	signalStrengthTimeoutMs      = 250
	mqttPublishTimeoutMs         = 10_000
	mqttDisconnectTimeoutMs      = 5_000
	closeTCPTimeoutMs            = 5_000

	mqttKeepAliveS = 600
	mqttClientID   = "1234"
)

// modemEngine is the subset of *atmodem.Engine the controller needs.
// Narrowing to an interface (rather than depending on the concrete
// engine directly) lets tests exercise Init/publish/command handling
// against a scripted fake instead of a real serial port.
type modemEngine interface {
	GetNetworkRegistration(timeoutMs int64) atmodem.Response
	GetIMEI(timeoutMs int64) atmodem.Response
	DeleteAllSMS(timeoutMs int64) atmodem.Response
	SetSMSPDUMode(timeoutMs int64) atmodem.Response
	SetSMSReceiveMode(timeoutMs int64) atmodem.Response
	PDPActivated() bool
	TCPConnected() bool
	DeactivatePDP(timeoutMs int64) atmodem.Response
	ConfigureDataContext(apn, user, pass string, timeoutMs int64) atmodem.Response
	ActivatePDP(timeoutMs int64) atmodem.Response
	GetOwnIP(timeoutMs int64) atmodem.Response
	OpenTCP(host string, port int, timeoutMs int64) atmodem.Response
	CloseTCP(timeoutMs int64) atmodem.Response
	GetSignalStrength(timeoutMs int64) atmodem.Response
	ReceiveSMS(id int, timeoutMs int64) atmodem.Response
	SendSMS(pduHex string, pduLength int, timeoutMs int64) atmodem.Response
}

// Controller drives the publish loop and the SMS command service
// against one modem engine.
type Controller struct {
	engine   modemEngine
	mqttc    *mqtt.Client
	store    *settings.Store
	snap     *boatdata.Snapshot
	smsCodec collaborators.SMSCodec
	led      collaborators.LED
	clk      clock.Clock
	log      *logrus.Logger

	smsNotifications      chan int
	hashedIMEI            uint32
	failedCount           int
	rebootNeeded          bool
	publishingStartNeeded bool

	// Restart is invoked (reason is for logging) whenever the original
	// firmware would call esp_restart(): a settings change requiring
	// reboot, an explicit RESET/RESTART command, or
	// MaxFailedPublishCount consecutive publish failures. The gateway
	// process has no firmware-style self-restart, so the caller
	// decides what that means (process exit, supervisor signal, ...).
	Restart func(reason string)

	// Metrics is an optional operational counter sink; nil disables
	// instrumentation entirely rather than requiring a no-op stub.
	Metrics MetricsSink
}

// MetricsSink is the narrow slice of internal/metrics.Registry the
// controller needs, so this package doesn't import metrics directly
// for what is purely diagnostic counting.
type MetricsSink interface {
	ObserveMQTTPublish(result fmt.Stringer)
	ObserveSMSCommand()
}

// New builds a Controller. engine and mqttc must share the same TCP
// bearer (mqttc wraps engine).
func New(engine modemEngine, mqttc *mqtt.Client, store *settings.Store, snap *boatdata.Snapshot, smsCodec collaborators.SMSCodec, led collaborators.LED, clk clock.Clock, log *logrus.Logger) *Controller {
	return &Controller{
		engine:           engine,
		mqttc:            mqttc,
		store:            store,
		snap:             snap,
		smsCodec:         smsCodec,
		led:              led,
		clk:              clk,
		log:              log,
		smsNotifications: make(chan int, 8),
	}
}

// NotifySMS is the callback to hand the atmodem.Engine as its
// smsNotify argument; it queues the message id for the command
// service without blocking the engine's run loop.
func (c *Controller) NotifySMS(id int) {
	select {
	case c.smsNotifications <- id:
	default:
		c.log.Warn("publisher: sms notification queue full, dropping")
	}
}

// HashedIMEI returns the device identifier derived at Init, or zero
// before Init has run.
func (c *Controller) HashedIMEI() uint32 {
	return c.hashedIMEI
}

// Init registers on the network, reads the IMEI and derives the
// device identifier, clears stored SMS, and puts SMS handling into
// PDU/URC mode. It retries network registration internally and only
// returns an error if registration never succeeds within its budget or
// a later modem call fails.
func (c *Controller) Init() error {
	if err := c.networkRegister(); err != nil {
		return err
	}

	resp := c.engine.GetIMEI(imeiTimeoutMs)
	if resp.Status != atmodem.StatusOK {
		return fmt.Errorf("publisher: get imei: %s", resp.Status)
	}
	c.hashedIMEI = hashDJB2(resp.IMEI)
	c.log.Infof("publisher: device id %08X", c.hashedIMEI)

	if resp := c.engine.DeleteAllSMS(deleteAllSMSTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("publisher: delete all sms: %s", resp.Status)
	}
	if resp := c.engine.SetSMSPDUMode(setParamTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("publisher: set sms pdu mode: %s", resp.Status)
	}
	if resp := c.engine.SetSMSReceiveMode(setParamTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("publisher: set sms receive mode: %s", resp.Status)
	}
	return nil
}

// networkRegister polls registration status once a second until
// registered or the budget is spent.
func (c *Controller) networkRegister() error {
	deadline := time.Now().Add(networkRegistrationBudgetMs * time.Millisecond)
	for {
		resp := c.engine.GetNetworkRegistration(setParamTimeoutMs)
		if resp.Status == atmodem.StatusOK && resp.Registered {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("publisher: network registration timed out")
		}
		time.Sleep(time.Second)
	}
}

// Run alternates the publish loop and the SMS command service until
// ctx is canceled, exactly as the original task's outer do-while does.
func (c *Controller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if c.store.Volatile().Started {
			c.publishOnce()
		}
		c.serviceCommandsFor(ctx, c.periodSeconds())
	}
}

func (c *Controller) periodSeconds() int {
	return c.store.NonVolatile().PeriodSeconds
}

// publishOnce is one iteration of the publish loop: phase 2 of the
// lifecycle in spec.md §4.5.
func (c *Controller) publishOnce() {
	failed := false

	if !c.engine.PDPActivated() {
		if err := c.activateDataConnection(); err != nil {
			c.log.Warnf("publisher: activate data connection: %v", err)
			failed = true
		}
	}

	if !failed && !c.engine.TCPConnected() {
		if err := c.openMQTTConnection(); err != nil {
			c.log.Warnf("publisher: open mqtt connection: %v", err)
			failed = true
		}
	}

	if !failed {
		if result := c.mqttc.HandleResponse(mqttHandleResponseTimeoutMs); result != mqtt.ResultNoResponse && result != mqtt.ResultOK {
			failed = true
		}
	}

	var strength int
	if !failed {
		resp := c.engine.GetSignalStrength(signalStrengthTimeoutMs)
		if resp.Status != atmodem.StatusOK {
			failed = true
		}
		strength = resp.SignalStrength
	}

	if !failed && c.engine.TCPConnected() {
		topic := fmt.Sprintf("%08X/all", c.hashedIMEI)
		frame := composeFrame(c.snap, strength, c.periodSeconds(), c.clk.NowMs())
		result := c.mqttc.Publish(topic, []byte(frame), false, mqttPublishTimeoutMs)
		c.log.Infof("publisher: publish %s %q %s", topic, frame, result)
		if c.Metrics != nil {
			c.Metrics.ObserveMQTTPublish(result)
		}

		if result == mqtt.ResultOK {
			c.failedCount = 0
			c.led.PublishFlash()
		} else {
			c.failedCount++
			if c.failedCount >= MaxFailedPublishCount {
				c.requestRestart("too many consecutive publish failures")
			}
		}
	}

	if c.periodSeconds() > mqttShutdownPeriodS {
		c.closeMQTTConnection()
	}
}

func (c *Controller) activateDataConnection() error {
	if resp := c.engine.DeactivatePDP(deactivatePDPTimeoutMs); resp.Status != atmodem.StatusShutOK {
		return fmt.Errorf("deactivate: %s", resp.Status)
	}
	nv := c.store.NonVolatile()
	if resp := c.engine.ConfigureDataContext(nv.APN, nv.APNUser, nv.APNPassword, setParamTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("configure: %s", resp.Status)
	}
	if resp := c.engine.ActivatePDP(activatePDPTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("activate: %s", resp.Status)
	}
	// The IP address result itself isn't needed downstream, but the
	// original driver's connection doesn't settle until it's read.
	if resp := c.engine.GetOwnIP(getOwnIPTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("get own ip: %s", resp.Status)
	}
	return nil
}

func (c *Controller) openMQTTConnection() error {
	nv := c.store.NonVolatile()
	if resp := c.engine.OpenTCP(nv.BrokerAddress, nv.BrokerPort, openTCPTimeoutMs); resp.Status != atmodem.StatusOK {
		return fmt.Errorf("open tcp: %s", resp.Status)
	}
	if result := c.mqttc.Connect(mqttClientID, "", "", mqttKeepAliveS, true, mqttConnectTimeoutMs); result != mqtt.ResultOK {
		return fmt.Errorf("mqtt connect: %s", result)
	}
	return nil
}

func (c *Controller) closeMQTTConnection() {
	c.mqttc.Disconnect(mqttDisconnectTimeoutMs)
	c.engine.CloseTCP(closeTCPTimeoutMs)
}

// serviceCommandsFor polls the SMS notification queue once a second
// for up to periodSeconds ticks, matching the original's for-loop
// between publishes; it returns early if a command requests an
// immediate republish or ctx is canceled.
func (c *Controller) serviceCommandsFor(ctx context.Context, periodSeconds int) {
	if periodSeconds <= 0 {
		periodSeconds = 1
	}
	for i := 0; i < periodSeconds; i++ {
		if ctx.Err() != nil {
			return
		}

		select {
		case id := <-c.smsNotifications:
			if c.handleSMSNotification(id) {
				return
			}
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}

		if c.failedCount > 0 {
			return
		}
	}
}

// handleSMSNotification fetches, decodes, and acts on one inbound SMS;
// it reports whether the publish loop should restart immediately
// (a PERIOD or START command took effect).
func (c *Controller) handleSMSNotification(id int) (restartNow bool) {
	resp := c.engine.ReceiveSMS(id, setParamTimeoutMs)
	if resp.Status == atmodem.StatusOK {
		phone, body, err := c.smsCodec.Decode(resp.Payload)
		if err == nil {
			c.store.SetPhoneNumber(phone)
			parsed := 0
			for _, tok := range cmdtoken.Tokenize(body) {
				if c.handleToken(tok) {
					parsed++
					if c.Metrics != nil {
						c.Metrics.ObserveSMSCommand()
					}
				}
			}
			c.log.Infof("publisher: %d commands parsed from sms", parsed)
		}
	}

	c.engine.DeleteAllSMS(deleteAllSMSTimeoutMs)

	if c.rebootNeeded {
		c.rebootNeeded = false
		c.requestRestart("settings change requires reboot")
	}
	if c.publishingStartNeeded {
		c.publishingStartNeeded = false
		return true
	}
	return false
}

// update applies mutate to the persisted settings, logging (not
// failing) on a persistence error, matching the original's
// fire-and-forget settings_save().
func (c *Controller) update(mutate func(*settings.NonVolatile)) {
	if err := c.store.Update(mutate); err != nil {
		c.log.Warnf("publisher: persist settings: %v", err)
	}
}

func (c *Controller) requestRestart(reason string) {
	if c.Restart != nil {
		c.Restart(reason)
	}
}

// sendSMS replies to the phone number recorded from the most recent
// inbound message.
func (c *Controller) sendSMS(body string) {
	phone := c.store.Volatile().PhoneNumber
	if phone == "" {
		return
	}
	pdu, err := c.smsCodec.Encode(phone, body)
	if err != nil {
		c.log.Warnf("publisher: encode sms reply: %v", err)
		return
	}
	resp := c.engine.SendSMS(fmt.Sprintf("%x", pdu), len(pdu), deleteAllSMSTimeoutMs)
	if resp.Status != atmodem.StatusOK && resp.Status != atmodem.StatusSendOK {
		c.log.Warnf("publisher: send sms: %s", resp.Status)
	}
}
