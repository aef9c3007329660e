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

// Package busingest decodes the small set of NMEA-2000 PGNs the boat's
// marine CAN bus carries into boatdata.Snapshot updates. The bus/PHY
// itself (the CAN controller and frame reassembly) is an external
// collaborator; this package only does the PGN -> field mapping.
package busingest

// CANFrame is one already-reassembled NMEA-2000 message: PGN plus its
// raw data field (multi-byte fields little-endian), handed to Ingest by
// the bus collaborator.
type CANFrame struct {
	PGN  uint32
	Data []byte
}

// The PGNs this gateway understands. Values are the standard
// NMEA-2000 PGN numbers for the corresponding measurement.
const (
	pgnPosition      uint32 = 129025 // Position, Rapid Update
	pgnCOGSOG        uint32 = 129026 // COG & SOG, Rapid Update
	pgnDepth         uint32 = 128267 // Water Depth
	pgnWindData      uint32 = 130306 // Wind Data
	pgnVesselHeading uint32 = 127250 // Vessel Heading
	pgnPressure      uint32 = 130314 // Actual Pressure (environmental, outbound only)
)
