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

package atmodem

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

// urcQuiescenceMs is how long the run loop waits for a command before
// polling for an unsolicited result code (spec.md §4.1).
const urcQuiescenceMs = 25

// maxInitAttempts bounds the number of ATE1 retries during Init.
const maxInitAttempts = 10

// chunkSize is the largest single TCP write/read section the engine
// will issue in one AT exchange; larger requests are chunked by the
// public API methods (spec.md §4.1 "Chunking").
const chunkSize = 99

type commandRequest struct {
	cmd   Command
	reply chan Response
}

// Engine owns a serial port exclusively and runs one AT exchange at a
// time. Clients call the typed wrapper methods (Hello, OpenTCP, ...),
// which validate parameters, build a Command and hand it to the single
// run-loop goroutine over a channel; a per-call reply channel gives
// each caller its own correlation without a second shared response
// queue (see DESIGN.md for why this is a HOW substitution for the
// spec's queue pair, not a behavior change: the run loop still
// processes at most one exchange at a time).
type Engine struct {
	port serialport.Port
	clk  clock.Clock
	log  *logrus.Logger

	smsNotify func(id int)

	cmdCh  chan commandRequest
	stopCh chan struct{}
	doneCh chan struct{}

	mu           sync.RWMutex
	tcpConnected bool
	pdpActivated bool
}

// NewEngine constructs an engine bound to an already-open serial port.
// smsNotify is invoked (from the run loop goroutine) whenever a
// `+CMTI` URC arrives; it may be nil.
func NewEngine(port serialport.Port, clk clock.Clock, log *logrus.Logger, smsNotify func(id int)) *Engine {
	return &Engine{
		port:      port,
		clk:       clk,
		log:       log,
		smsNotify: smsNotify,
		cmdCh:     make(chan commandRequest),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// TCPConnected reports the engine's last-known TCP connection state.
func (e *Engine) TCPConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tcpConnected
}

// PDPActivated reports the engine's last-known PDP context state.
func (e *Engine) PDPActivated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pdpActivated
}

func (e *Engine) setTCPConnected(v bool) {
	e.mu.Lock()
	e.tcpConnected = v
	e.mu.Unlock()
}

func (e *Engine) setPDPActivated(v bool) {
	e.mu.Lock()
	e.pdpActivated = v
	e.mu.Unlock()
}

// Init performs the hard reset + echo-enable sequence spec.md §4.1
// calls for: write the reset command, wait (via sleep, overridable by
// tests), then attempt ATE1 up to maxInitAttempts times.
func (e *Engine) Init(sleep func(time.Duration)) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	if _, err := e.port.Write([]byte("AT+CFUN=1,1\r\n")); err != nil {
		return fmt.Errorf("atmodem: reset write: %w", err)
	}
	sleep(3 * time.Second)

	var lastErr error
	for attempt := 0; attempt < maxInitAttempts; attempt++ {
		if err := e.tryEnableEcho(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("atmodem: could not enable echo after %d attempts: %w", maxInitAttempts, lastErr)
}

func (e *Engine) tryEnableEcho() error {
	if err := e.port.SetReadTimeout(500 * time.Millisecond); err != nil {
		return err
	}
	if _, err := e.port.Write([]byte("ATE1\r\n")); err != nil {
		return err
	}
	buf := make([]byte, 0, 16)
	one := make([]byte, 1)
	for len(buf) < 16 {
		n, err := e.port.Read(one)
		if n > 0 {
			buf = append(buf, one[0])
			if strings.HasSuffix(string(buf), "OK\r\n") {
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
	return errUnexpectedResponse
}

// Run executes the single-goroutine command/URC loop until Close is
// called. It is meant to be run in its own goroutine.
func (e *Engine) Run() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			return
		case req := <-e.cmdCh:
			req.reply <- e.execute(req.cmd)
		case <-time.After(urcQuiescenceMs * time.Millisecond):
			e.pollURC()
		}
	}
}

// Close stops the run loop and waits for it to exit.
func (e *Engine) Close() {
	close(e.stopCh)
	<-e.doneCh
}

// pollURC makes one best-effort attempt to read a URC line when no
// command is in flight; absence of data is not an error.
func (e *Engine) pollURC() {
	if err := e.port.SetReadTimeout(1 * time.Millisecond); err != nil {
		return
	}
	b := newBudget(e.clk, 5)
	line, err := readLine(e.port, b)
	if err != nil || line == "" {
		return
	}
	e.dispatchURC(line)
}

// dispatchURC applies the state effect (if any) of one recognized URC
// line, per spec.md §4.1's table. line includes its trailing CRLF.
func (e *Engine) dispatchURC(line string) {
	// "+PDP: DEACT" is matched against the full 13-byte string
	// including its CRLF terminator -- spec.md §9's Open Question
	// resolution, not the original's inconsistent 8-byte compare.
	if line == "+PDP: DEACT\r\n" {
		e.setPDPActivated(false)
		return
	}
	trimmed := trimCRLF(line)
	switch {
	case trimmed == "CONNECT OK":
		e.setTCPConnected(true)
	case trimmed == "CLOSED":
		e.setTCPConnected(false)
	case strings.HasPrefix(trimmed, "+CMTI:"):
		if id, ok := parseCMTI(trimmed); ok && e.smsNotify != nil {
			e.smsNotify(id)
		}
	default:
		if e.log != nil {
			e.log.WithField("line", trimmed).Debug("atmodem: unrecognized URC discarded")
		}
	}
}

// parseCMTI extracts the integer id from `+CMTI: "<storage>",<id>`.
func parseCMTI(line string) (int, bool) {
	comma := strings.LastIndex(line, ",")
	if comma < 0 || comma+1 >= len(line) {
		return 0, false
	}
	id, err := strconv.Atoi(line[comma+1:])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Submit hands a pre-validated command to the run loop and blocks for
// its response.
func (e *Engine) Submit(cmd Command) Response {
	reply := make(chan Response, 1)
	e.cmdCh <- commandRequest{cmd: cmd, reply: reply}
	return <-reply
}

// consumeEcho reads lines until one matches the expected echo of
// cmdText (cmdText + the CR we sent + the device's own CRLF),
// dispatching any non-matching line as a URC and retrying, bounded by
// maxInterleavedURCLines (spec.md §4.1 step 2).
func (e *Engine) consumeEcho(cmdText string, b *budget) error {
	expected := cmdText + "\r\r\n"
	for attempt := 0; attempt < maxInterleavedURCLines; attempt++ {
		line, err := readLine(e.port, b)
		if err != nil {
			return err
		}
		if line == expected {
			return nil
		}
		e.dispatchURC(line)
	}
	return errUnexpectedResponse
}

// readResult is the outcome of reading everything after a matched
// echo: an optional info line, then a terminator status.
type readResult struct {
	infoLine string
	status   Status
}

// readResponse consumes blank lines, at most one info line, and a
// terminator line (spec.md §4.1 steps 4-5).
func (e *Engine) readResponse(b *budget) (readResult, error) {
	var info string
	for {
		line, err := readLine(e.port, b)
		if err != nil {
			return readResult{}, err
		}
		trimmed := trimCRLF(line)
		if trimmed == "" {
			continue
		}
		if status, ok := terminatorStatus(trimmed); ok {
			return readResult{infoLine: info, status: status}, nil
		}
		if info == "" {
			info = trimmed
			continue
		}
		return readResult{}, errUnexpectedResponse
	}
}

// promptBranch implements the prompt-based write variant (spec.md
// §4.1): after echo, the device emits either "> " or "ERROR\r\n". ok
// is true only for the prompt branch.
func (e *Engine) promptBranch(b *budget) (ok bool, err error) {
	first, err := readExact(e.port, b, 1)
	if err != nil {
		return false, err
	}
	if first[0] == 'E' {
		if _, err := readExact(e.port, b, 6); err != nil {
			return false, err
		}
		return false, nil
	}
	second, err := readExact(e.port, b, 1)
	if err != nil {
		return false, err
	}
	if first[0] != '>' || second[0] != ' ' {
		return false, errUnexpectedResponse
	}
	return true, nil
}

// resync flushes bytes up to the next newline on a negative status, to
// resynchronize the parser for the next exchange (spec.md §7).
func (e *Engine) resync() {
	b := newBudget(e.clk, 200)
	_, _ = readLine(e.port, b)
}

func errToStatus(err error) Status {
	switch err {
	case errTimeout:
		return StatusTimeout
	case errOverflow:
		return StatusOverflow
	case errUnexpectedResponse:
		return StatusUnexpectedResponse
	default:
		return StatusFatalError
	}
}

// basicExchange runs the common case: write cmdText+CR, consume echo,
// then read the (optional info line +) terminator.
func (e *Engine) basicExchange(cmdText string, b *budget) readResult {
	if _, err := e.port.Write([]byte(cmdText + "\r")); err != nil {
		return readResult{status: StatusFatalError}
	}
	if err := e.consumeEcho(cmdText, b); err != nil {
		e.resync()
		return readResult{status: errToStatus(err)}
	}
	res, err := e.readResponse(b)
	if err != nil {
		e.resync()
		return readResult{status: errToStatus(err)}
	}
	if res.status.negative() {
		e.resync()
	}
	return res
}

// execute dispatches one command to its exchange implementation. It
// runs on the engine's single goroutine, so no further locking is
// needed here beyond the tcpConnected/pdpActivated accessors.
func (e *Engine) execute(cmd Command) Response {
	b := newBudget(e.clk, cmd.TimeoutMs)
	switch cmd.Kind {
	case CmdHello:
		r := e.basicExchange("AT", b)
		return Response{Status: r.status}
	case CmdGetSignalStrength:
		r := e.basicExchange("AT+CSQ", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.SignalStrength = parseCSQ(r.infoLine)
		}
		return resp
	case CmdGetNetworkRegistration:
		r := e.basicExchange("AT+CREG?", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.Registered = parseCREG(r.infoLine)
		}
		return resp
	case CmdConfigureDataContext:
		cmdText := fmt.Sprintf("AT+CSTT=\"%s\",\"%s\",\"%s\"", cmd.APN, cmd.User, cmd.Pass)
		r := e.basicExchange(cmdText, b)
		return Response{Status: r.status}
	case CmdActivatePDP:
		r := e.basicExchange("AT+CIICR", b)
		if r.status == StatusOK {
			e.setPDPActivated(true)
		}
		return Response{Status: r.status}
	case CmdDeactivatePDP:
		r := e.basicExchange("AT+CIPSHUT", b)
		e.setPDPActivated(false)
		return Response{Status: r.status}
	case CmdGetOwnIP:
		r := e.basicExchange("AT+CIFSR", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.IP = r.infoLine
		}
		return resp
	case CmdOpenTCP:
		return e.doOpenTCP(cmd, b)
	case CmdCloseTCP:
		r := e.basicExchange("AT+CIPCLOSE", b)
		if r.status == StatusCloseOK {
			e.setTCPConnected(false)
		}
		return Response{Status: r.status}
	case CmdWriteTCP:
		return e.doWriteTCP(cmd, b)
	case CmdQueryReadWaiting:
		r := e.basicExchange("AT+CIPRXGET=4", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.ReadWaitingLen, _ = strconv.Atoi(strings.TrimSpace(r.infoLine))
		}
		return resp
	case CmdReadTCP:
		return e.doReadTCP(cmd, b)
	case CmdSetSMSPDUMode:
		r := e.basicExchange("AT+CMGF=0", b)
		return Response{Status: r.status}
	case CmdSetSMSReceiveMode:
		r := e.basicExchange("AT+CNMI=1,1,0,0,0", b)
		return Response{Status: r.status}
	case CmdReceiveSMS:
		r := e.basicExchange(fmt.Sprintf("AT+CMGR=%d", cmd.SMSID), b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.Payload = []byte(r.infoLine)
		}
		return resp
	case CmdSendSMS:
		return e.doSendSMS(cmd, b)
	case CmdDeleteAllSMS:
		r := e.basicExchange("AT+CMGD=1,4", b)
		return Response{Status: r.status}
	case CmdGetOperator:
		r := e.basicExchange("AT+COPS?", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.Operator = r.infoLine
		}
		return resp
	case CmdGetIMEI:
		r := e.basicExchange("AT+GSN", b)
		resp := Response{Status: r.status}
		if r.status == StatusOK {
			resp.IMEI = strings.TrimSpace(r.infoLine)
		}
		return resp
	case CmdPowerDown:
		r := e.basicExchange("AT+CPOWD=1", b)
		return Response{Status: r.status}
	default:
		return Response{Status: StatusBadParameter}
	}
}

func (e *Engine) doOpenTCP(cmd Command, b *budget) Response {
	if e.TCPConnected() {
		return Response{Status: StatusTCPAlreadyConnected}
	}
	cmdText := fmt.Sprintf("AT+CIPSTART=\"TCP\",\"%s\",\"%d\"", cmd.Host, cmd.Port)
	r := e.basicExchange(cmdText, b)
	if r.status != StatusOK {
		return Response{Status: r.status}
	}
	for !e.TCPConnected() {
		if b.expired() {
			return Response{Status: StatusTimeout}
		}
		time.Sleep(5 * time.Millisecond)
		e.pollURCDuringOpen(b)
	}
	return Response{Status: StatusOK}
}

// pollURCDuringOpen gives the CONNECT OK URC a chance to arrive while
// OpenTCP polls for connection state.
func (e *Engine) pollURCDuringOpen(b *budget) {
	remaining := b.remaining()
	if remaining <= 0 {
		return
	}
	wait := remaining
	if wait > 50*time.Millisecond {
		wait = 50 * time.Millisecond
	}
	_ = e.port.SetReadTimeout(wait)
	sub := newBudget(e.clk, int64(wait/time.Millisecond))
	line, err := readLine(e.port, sub)
	if err == nil && line != "" {
		e.dispatchURC(line)
	}
}

func (e *Engine) doWriteTCP(cmd Command, b *budget) Response {
	cmdText := fmt.Sprintf("AT+CIPSEND=%d", len(cmd.Payload))
	if _, err := e.port.Write([]byte(cmdText + "\r")); err != nil {
		return Response{Status: StatusFatalError}
	}
	if err := e.consumeEcho(cmdText, b); err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	ok, err := e.promptBranch(b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	if !ok {
		e.resync()
		return Response{Status: StatusError}
	}
	if _, err := e.port.Write(cmd.Payload); err != nil {
		return Response{Status: StatusFatalError}
	}
	if _, err := readExact(e.port, b, len(cmd.Payload)); err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	res, err := e.readResponse(b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	if res.status == StatusClosed {
		e.setTCPConnected(false)
	}
	if res.status.negative() {
		e.resync()
	}
	return Response{Status: res.status}
}

func (e *Engine) doReadTCP(cmd Command, b *budget) Response {
	n := cmd.PDULength
	cmdText := fmt.Sprintf("AT+CIPRXGET=2,%d", n)
	if _, err := e.port.Write([]byte(cmdText + "\r")); err != nil {
		return Response{Status: StatusFatalError}
	}
	if err := e.consumeEcho(cmdText, b); err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	header, err := readLine(e.port, b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	length, ok := parseCIPRXGET2(header)
	if !ok {
		e.resync()
		return Response{Status: StatusUnexpectedResponse}
	}
	payload, err := readExact(e.port, b, length)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	res, err := e.readResponse(b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	if res.status.negative() {
		e.resync()
		return Response{Status: res.status}
	}
	return Response{Status: res.status, Payload: payload}
}

func (e *Engine) doSendSMS(cmd Command, b *budget) Response {
	cmdText := fmt.Sprintf("AT+CMGS=%d", cmd.PDULength)
	if _, err := e.port.Write([]byte(cmdText + "\r")); err != nil {
		return Response{Status: StatusFatalError}
	}
	if err := e.consumeEcho(cmdText, b); err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	ok, err := e.promptBranch(b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	if !ok {
		e.resync()
		return Response{Status: StatusError}
	}
	payload := append([]byte(cmd.PDUHex), 0x1A)
	if _, err := e.port.Write(payload); err != nil {
		return Response{Status: StatusFatalError}
	}
	if _, err := readExact(e.port, b, len(payload)); err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	res, err := e.readResponse(b)
	if err != nil {
		e.resync()
		return Response{Status: errToStatus(err)}
	}
	resp := Response{Status: res.status}
	if res.status == StatusOK && strings.HasPrefix(res.infoLine, "+CMGS:") {
		id, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(res.infoLine, "+CMGS:")))
		resp.SMSID = id
	}
	if res.status.negative() {
		e.resync()
	}
	return resp
}

func parseCSQ(info string) int {
	info = strings.TrimPrefix(info, "+CSQ:")
	info = strings.TrimSpace(info)
	if i := strings.Index(info, ","); i >= 0 {
		info = info[:i]
	}
	v, _ := strconv.Atoi(info)
	return v
}

func parseCREG(info string) bool {
	info = strings.TrimPrefix(info, "+CREG:")
	parts := strings.Split(strings.TrimSpace(info), ",")
	if len(parts) < 2 {
		return false
	}
	status := strings.TrimSpace(parts[1])
	return status == "1" || status == "5"
}

func parseCIPRXGET2(header string) (int, bool) {
	line := trimCRLF(header)
	const prefix = "+CIPRXGET: 2,"
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(line[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// chunks splits data into chunkSize-byte sections (spec.md §4.1
// "Chunking"); TCP writes/reads larger than one section are issued by
// the public API as a sequence of single-section exchanges.
func chunks(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var out [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}
