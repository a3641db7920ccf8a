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
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// HeadersRequest describes a range of headers to fetch starting at Start.
// Reverse selects falling (descending) order; this engine only ever
// requests Reverse: true ranges, but the field is kept honest about
// direction rather than hardcoded, mirroring the Origin/Amount/Reverse
// shape of go-ethereum's wire-level GetBlockHeadersPacket.
type HeadersRequest struct {
	Start   common.Hash
	Limit   uint64
	Reverse bool
}

// HeaderResult is what a single-header request yields: an envelope
// carrying the header the peer returned (nil if the peer doesn't have it),
// or a transport/protocol error.
type HeaderResult struct {
	Envelope Envelope[*Header]
	Err      error
}

// BodyResult is what a single-body request yields.
type BodyResult struct {
	Envelope Envelope[*Body]
	Err      error
}

// HeadersResult is what a header-range request yields.
type HeadersResult struct {
	Envelope Envelope[[]*Header]
	Err      error
}

// BodiesResult is what a body-range request yields.
type BodiesResult struct {
	Envelope Envelope[[]*Body]
	Err      error
}

// PeerClient is the capability this engine consumes to talk to the
// network. Every method returns immediately with a channel that will
// receive exactly one value before being closed — a one-shot future. The
// wire protocol framing, session negotiation, and peer selection behind
// this interface are entirely out of scope for this package.
//
// Responses are untrusted: a PeerClient may return a header that doesn't
// match the requested hash, a body that doesn't pair with any outstanding
// header, a truncated or oversized list, a list in the wrong order, or an
// error. Detecting and recovering from all of these is this package's job.
//
// For GetBodies, responses must preserve the order of the requested hash
// slice; this assumption is required, not merely convenient — under
// positional pairing, a PeerClient that reorders bodies causes every
// misplaced body that fails ValidateBody to be reported and re-requested,
// not to be accepted silently.
type PeerClient interface {
	// GetHeader fetches the header for a single hash.
	GetHeader(ctx context.Context, hash common.Hash) <-chan HeaderResult
	// GetBody fetches the body for a single hash.
	GetBody(ctx context.Context, hash common.Hash) <-chan BodyResult
	// GetHeaders fetches a contiguous run of headers.
	GetHeaders(ctx context.Context, req HeadersRequest) <-chan HeadersResult
	// GetBodies fetches bodies for the given hashes, in request order.
	GetBodies(ctx context.Context, hashes []common.Hash) <-chan BodiesResult
	// ReportBadPeer is a fire-and-forget notification that a peer produced
	// a response violating an identity, ordering, or validation contract.
	ReportBadPeer(peer PeerID)
}
