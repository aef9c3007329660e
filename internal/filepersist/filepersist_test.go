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

package filepersist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBeforeStoreErrors(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	_, err := s.Load()
	require.Error(t, err)
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, s.Store([]byte(`{"apn":"test"}`)))

	data, err := s.Load()
	require.NoError(t, err)
	require.JSONEq(t, `{"apn":"test"}`, string(data))
}

func TestStoreOverwritesPreviousContent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, s.Store([]byte(`{"apn":"one"}`)))
	require.NoError(t, s.Store([]byte(`{"apn":"two"}`)))

	data, err := s.Load()
	require.NoError(t, err)
	require.JSONEq(t, `{"apn":"two"}`, string(data))
}
