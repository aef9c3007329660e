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
	"errors"
	"net"
	"time"

	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

// maxInterleavedURCLines bounds how many non-matching lines the echo
// reader tolerates before giving up with unexpected-response. Carried
// over from the original's echo/URC interleave scan bound.
const maxInterleavedURCLines = 8

// maxURCLineLen is the maximum length of a single URC line; a line
// growing past this without a terminator resets the scan (spec.md
// §4.1's quiescence/overflow rule).
const maxURCLineLen = 50

var (
	errTimeout            = errors.New("atmodem: timeout")
	errUnexpectedResponse = errors.New("atmodem: unexpected response")
	errOverflow           = errors.New("atmodem: overflow")
)

// budget tracks a single exchange's remaining timeout, carried forward
// across every sub-step (spec.md §4.1: "timeouts are global to an
// exchange").
type budget struct {
	clk       clock.Clock
	startMs   int64
	timeoutMs int64
}

func newBudget(clk clock.Clock, timeoutMs int64) *budget {
	return &budget{clk: clk, startMs: clk.NowMs(), timeoutMs: timeoutMs}
}

func (b *budget) remaining() time.Duration {
	elapsed := b.clk.NowMs() - b.startMs
	rem := b.timeoutMs - elapsed
	if rem < 0 {
		rem = 0
	}
	return time.Duration(rem) * time.Millisecond
}

func (b *budget) expired() bool {
	return b.remaining() <= 0
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// readLine reads bytes up to and including the next '\n', honoring
// the exchange's remaining budget and the URC max-length overflow
// rule. The returned string includes the trailing '\n' (and any '\r'
// before it) so exact echo comparisons don't need to re-add it.
func readLine(port serialport.Port, b *budget) (string, error) {
	if b.expired() {
		return "", errTimeout
	}
	if err := port.SetReadTimeout(b.remaining()); err != nil {
		return "", err
	}
	buf := make([]byte, 0, 16)
	one := make([]byte, 1)
	for {
		if b.expired() {
			return string(buf), errTimeout
		}
		n, err := port.Read(one)
		if n > 0 {
			buf = append(buf, one[0])
			if one[0] == '\n' {
				return string(buf), nil
			}
			if len(buf) > maxURCLineLen {
				return "", errOverflow
			}
		}
		if err != nil {
			if isTimeoutErr(err) {
				return string(buf), errTimeout
			}
			return string(buf), err
		}
	}
}

// readExact reads exactly n bytes, honoring the exchange's remaining
// budget. Used for payload echo and fixed-length prompt/branch reads
// where a generic line scan would be wrong (the payload may contain
// '\n' bytes of its own).
func readExact(port serialport.Port, b *budget, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if b.expired() {
		return nil, errTimeout
	}
	if err := port.SetReadTimeout(b.remaining()); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		if b.expired() {
			return buf[:read], errTimeout
		}
		k, err := port.Read(buf[read:])
		read += k
		if err != nil {
			if isTimeoutErr(err) {
				return buf[:read], errTimeout
			}
			return buf[:read], err
		}
	}
	return buf, nil
}

// terminatorStatus maps a trimmed terminator line to its Status, per
// the closed set in spec.md §4.1 step 5.
func terminatorStatus(line string) (Status, bool) {
	switch line {
	case "OK":
		return StatusOK, true
	case "ERROR":
		return StatusError, true
	case "SHUT OK":
		return StatusShutOK, true
	case "CLOSE OK":
		return StatusCloseOK, true
	case "SEND OK":
		return StatusSendOK, true
	case "CLOSED":
		return StatusClosed, true
	case "NORMAL POWER DOWN":
		return StatusPoweredDown, true
	}
	return 0, false
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
