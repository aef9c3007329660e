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

package cmdtoken

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidPeriod is returned when a PERIOD value doesn't parse as a
// well-formed, order-sensitive hms duration.
var ErrInvalidPeriod = errors.New("cmdtoken: invalid period")

// ParsePeriod parses the PERIOD command's value: any subset of
// "<n>h<n>m<n>s", each component optional but the letters that are
// present must appear in h, m, s order (matching the publisher's
// compile-time period field, which is whole seconds). Returns the
// total number of seconds.
func ParsePeriod(s string) (int, error) {
	const (
		stageHours = iota
		stageMinutes
		stageSeconds
		stageDone
	)
	stage := stageHours
	total := 0
	i := 0
	sawAny := false
	for i < len(s) {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return 0, ErrInvalidPeriod
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil {
			return 0, ErrInvalidPeriod
		}
		if i >= len(s) {
			return 0, ErrInvalidPeriod
		}
		unit := s[i]
		i++
		switch unit {
		case 'h', 'H':
			if stage > stageHours {
				return 0, ErrInvalidPeriod
			}
			total += n * 3600
			stage = stageMinutes
		case 'm', 'M':
			if stage > stageMinutes {
				return 0, ErrInvalidPeriod
			}
			total += n * 60
			stage = stageSeconds
		case 's', 'S':
			if stage > stageSeconds {
				return 0, ErrInvalidPeriod
			}
			total += n
			stage = stageDone
		default:
			return 0, ErrInvalidPeriod
		}
		sawAny = true
	}
	if !sawAny {
		return 0, ErrInvalidPeriod
	}
	return total, nil
}

// FormatPeriod renders seconds back into "<n>h<n>m<n>s" form, omitting
// any component that is zero. A period of zero renders as "0s".
func FormatPeriod(seconds int) string {
	h := seconds / 3600
	m := (seconds - h*3600) / 60
	s := seconds % 60

	var b strings.Builder
	if h > 0 {
		b.WriteString(strconv.Itoa(h))
		b.WriteByte('h')
	}
	if m > 0 {
		b.WriteString(strconv.Itoa(m))
		b.WriteByte('m')
	}
	if s > 0 || b.Len() == 0 {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte('s')
	}
	return b.String()
}
