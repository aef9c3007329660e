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

// Package settings holds the gateway's non-volatile (persisted) and
// volatile (runtime, not persisted) configuration, with a factory
// reset that restores the same defaults the original firmware ships
// with.
package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/miniwinwm/bluebridge/internal/collaborators"
)

// Field length bounds the modem's AT command set imposes.
const (
	MaxAPNLength         = 20
	MaxUsernameLength    = 12
	MaxPasswordLength    = 12
	MaxBrokerLength      = 32
	MaxPhoneNumberLength = 20
)

// Default values restored by a factory reset.
const (
	DefaultAPN           = "data.uk"
	DefaultAPNUser       = "user"
	DefaultAPNPassword   = "one2one"
	DefaultBrokerAddress = "broker.emqx.io"
	DefaultBrokerPort    = 1883
	DefaultPeriodSeconds = 30
	DefaultStartOnBoot   = true
)

// NonVolatile is the persisted settings blob.
type NonVolatile struct {
	APN           string `json:"apn"`
	APNUser       string `json:"apn_user"`
	APNPassword   string `json:"apn_password"`
	BrokerAddress string `json:"broker_address"`
	BrokerPort    int    `json:"broker_port"`
	PeriodSeconds int    `json:"period_seconds"`
}

// DefaultNonVolatile returns the factory-reset settings, matching the
// original firmware's SETTINGS_DEFAULT_* constants exactly.
func DefaultNonVolatile() NonVolatile {
	return NonVolatile{
		APN:           DefaultAPN,
		APNUser:       DefaultAPNUser,
		APNPassword:   DefaultAPNPassword,
		BrokerAddress: DefaultBrokerAddress,
		BrokerPort:    DefaultBrokerPort,
		PeriodSeconds: DefaultPeriodSeconds,
	}
}

// Volatile is runtime-only state, reset on every boot.
type Volatile struct {
	Started     bool
	PhoneNumber string // the sender of the most recent inbound SMS
}

// DefaultVolatile returns the boot-time runtime state.
func DefaultVolatile() Volatile {
	return Volatile{Started: DefaultStartOnBoot}
}

// Store guards NonVolatile/Volatile behind one mutex (settings change
// rarely and never on a hot path, unlike boatdata's per-field cells)
// and persists NonVolatile through a collaborators.Persistence.
type Store struct {
	mu   sync.RWMutex
	nv   NonVolatile
	v    Volatile
	perm collaborators.Persistence
}

// New loads persisted settings via perm, falling back to factory
// defaults if nothing has been stored yet or the stored blob is
// unreadable.
func New(perm collaborators.Persistence) *Store {
	s := &Store{nv: DefaultNonVolatile(), v: DefaultVolatile(), perm: perm}
	if blob, err := perm.Load(); err == nil {
		var nv NonVolatile
		if json.Unmarshal(blob, &nv) == nil {
			s.nv = nv
		}
	}
	return s
}

// NonVolatile returns a copy of the current persisted settings.
func (s *Store) NonVolatile() NonVolatile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nv
}

// Volatile returns a copy of the current runtime settings.
func (s *Store) Volatile() Volatile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// SetStarted updates the runtime started flag.
func (s *Store) SetStarted(started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Started = started
}

// SetPhoneNumber records the sender of the most recent inbound SMS.
func (s *Store) SetPhoneNumber(number string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.PhoneNumber = number
}

// Update applies mutate to a copy of the current non-volatile
// settings and persists the result.
func (s *Store) Update(mutate func(*NonVolatile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nv := s.nv
	mutate(&nv)
	blob, err := json.Marshal(nv)
	if err != nil {
		return err
	}
	if err := s.perm.Store(blob); err != nil {
		return err
	}
	s.nv = nv
	return nil
}

// FactoryReset restores NonVolatile to its defaults and persists it.
func (s *Store) FactoryReset() error {
	return s.Update(func(nv *NonVolatile) { *nv = DefaultNonVolatile() })
}

// Summary renders the current non-volatile settings plus started
// state as one line of human-readable text.
func (s *Store) Summary() string {
	nv := s.NonVolatile()
	v := s.Volatile()
	state := "stopped"
	if v.Started {
		state = "started"
	}
	return fmt.Sprintf(
		"APN=%s USER=%s BROKER=%s PORT=%d PERIOD=%ds %s",
		nv.APN, nv.APNUser, nv.BrokerAddress, nv.BrokerPort, nv.PeriodSeconds, state,
	)
}
