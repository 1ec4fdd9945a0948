// Copyright 2019 The Swarm Authors
// This file is part of the Swarm library.
//
// The Swarm library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Swarm library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Swarm library. If not, see <http://www.gnu.org/licenses/>.

// Package wire defines the six message tags exchanged between the tracker
// and its clients and the fixed payload shape carried by each, per the
// wire protocol in spec.md §4.1. It is the tag-registry analogue of the
// teacher's network/stream Stream! message types (GetRange, OfferedHashes,
// WantedHashes, ChunkDelivery): a small, closed set of struct types, one
// per logical exchange, that a Spec-style codec can encode/decode without
// bespoke per-message plumbing.
package wire

import "fmt"

// Tag multiplexes independent logical message streams over the same
// transport channel between a pair of processes.
type Tag uint8

const (
	// HASH carries the bulk chunk-hash channel: startup inventory upload
	// and the per-peer manifest payload of a SWARM reply.
	HASH Tag = 0
	// CLIENT_TYPE carries a single Kind value, sent once per client
	// during intake.
	ClientType Tag = 1
	// ACK carries a fixed 2-byte "OK" acknowledgement.
	Ack Tag = 2
	// SWARM carries the swarm-query request/response exchange.
	Swarm Tag = 3
	// REQUEST carries a chunk-hash request (peer->peer) or the
	// STOP_UPLOADING control string (tracker->peer).
	Request Tag = 4
	// INFORM carries progress reports and peer-list refresh requests.
	Inform Tag = 5
)

func (t Tag) String() string {
	switch t {
	case HASH:
		return "HASH"
	case ClientType:
		return "CLIENT_TYPE"
	case Ack:
		return "ACK"
	case Swarm:
		return "SWARM"
	case Request:
		return "REQUEST"
	case Inform:
		return "INFORM"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// BuffSize is the reference transport's fixed receive buffer size (spec
// §5). The transports in this module do not use it: their frames carry
// their own length.
const BuffSize = 64

// AckOK is the fixed 2-byte ACK payload.
const AckOK = "OK"

// StopUploading is the 14-character REQUEST-tag control string the tracker
// broadcasts to end an uploader's receive loop (spec §4.2, §4.5).
const StopUploading = "STOP_UPLOADING"

// INFORM verbs, spec §4.1.
const (
	InformDown10          = "DOWN_10"
	InformDownAll         = "DOWN_X"
	InformGivePeers       = "GIVE_PEERS"
	InformFinishedDownAll = "FINISHED_DOWN_ALL"
)

// Down10Batch is the number of chunks a DOWN_10 report covers (spec §4.4
// step 6: "if downloaded % 10 == 0").
const Down10Batch = 10
