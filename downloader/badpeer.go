// Copyright 2024 The fullblock Authors
// This file is part of the fullblock library.
//
// The fullblock library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The fullblock library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the fullblock library. If not, see <http://www.gnu.org/licenses/>.

package downloader

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// BadPeerReason classifies why a response was rejected, for observability
// only — it never changes retry behavior.
type BadPeerReason string

const (
	ReasonWrongHeader      BadPeerReason = "wrong-header"
	ReasonWrongRangeStart  BadPeerReason = "wrong-range-start"
	ReasonWrongRangeLength BadPeerReason = "wrong-range-length"
	ReasonBadHeaderRange   BadPeerReason = "bad-header-range"
	ReasonBadBody          BadPeerReason = "bad-body"
)

// BadPeerEvent is broadcast every time this package reports a peer as
// misbehaving. Peer discovery, scoring, and selection are out of scope for
// this package; the event feed is how those concerns,
// living in the host, learn about misbehavior without this package taking
// a dependency on them.
type BadPeerEvent struct {
	Peer   PeerID
	Reason BadPeerReason
	Hash   common.Hash // the offending request's target hash
}

// badPeerFeed is process-wide: every Client reports into the same feed,
// matching go-ethereum's convention of a shared event.Feed per subsystem
// rather than per-instance plumbing the host has to wire up per Client.
var badPeerFeed event.Feed

// SubscribeBadPeerEvents lets a host (peer scorer, metrics exporter, ...)
// observe every bad-peer report this package emits, without this package
// needing to know anything about peer scoring policy.
func SubscribeBadPeerEvents(ch chan<- BadPeerEvent) event.Subscription {
	return badPeerFeed.Subscribe(ch)
}

func reportBadPeer(client PeerClient, peer PeerID, reason BadPeerReason, hash common.Hash) {
	client.ReportBadPeer(peer)
	badPeerMeter.Mark(1)
	badPeerFeed.Send(BadPeerEvent{Peer: peer, Reason: reason, Hash: hash})
}
