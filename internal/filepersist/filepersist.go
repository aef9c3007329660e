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

// Package filepersist is a plain-file collaborators.Persistence: the
// gateway runs on a host filesystem, not the original firmware's flash
// partition, so settings survive a restart as one file on disk rather
// than an NVS blob.
package filepersist

import (
	"os"

	"github.com/miniwinwm/bluebridge/internal/collaborators"
)

// Store persists settings to a single file, read and written whole.
type Store struct {
	path string
}

// New returns a Store writing to path. The file need not exist yet;
// Load reports an error until the first Store call.
func New(path string) *Store {
	return &Store{path: path}
}

var _ collaborators.Persistence = (*Store)(nil)

func (s *Store) Load() ([]byte, error) {
	return os.ReadFile(s.path)
}

func (s *Store) Store(data []byte) error {
	return os.WriteFile(s.path, data, 0o600)
}
