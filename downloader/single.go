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
	"github.com/ethereum/go-ethereum/log"
)

// runSingleBlockFetch downloads and validates one block by hash. Both the
// header and body sub-requests are issued immediately and raced against
// each other with a single select loop: whichever completes first is
// handled, and its slot is re-armed unless it was just filled with a
// trusted result. The loop never returns an error of its own making —
// every rejected response is retried against whatever peer the PeerClient
// picks next — except when ctx is canceled, which is the only way a caller
// can stop this early.
func runSingleBlockFetch(ctx context.Context, client PeerClient, consensus Consensus, cache *headerCache, hash common.Hash) (*SealedBlock, error) {
	var (
		header *SealedHeader
		body   *bodyResponse[*Body]
	)

	headerCh := client.GetHeader(ctx, hash)
	bodyCh := client.GetBody(ctx, hash)
	headerReqMeter.Mark(1)
	bodyReqMeter.Mark(1)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case res := <-headerCh:
			headerCh = nil
			if res.Err != nil {
				log.Debug("Header download failed", "hash", hash, "err", res.Err)
			} else if peer, h := res.Envelope.Split(); h != nil {
				sealed := NewSealedHeader(h, cache.seal(h))
				if sealed.Hash() == hash {
					header = sealed
				} else {
					log.Debug("Received wrong header", "expected", hash, "received", sealed.Hash(), "peer", peer)
					reportBadPeer(client, peer, ReasonWrongHeader, hash)
				}
			}
			if header == nil {
				headerReqMeter.Mark(1)
				headerRetryMeter.Mark(1)
				headerCh = client.GetHeader(ctx, hash)
			}

		case res := <-bodyCh:
			bodyCh = nil
			if res.Err != nil {
				log.Debug("Body download failed", "hash", hash, "err", res.Err)
			} else if peer, b := res.Envelope.Split(); b != nil {
				body = onBodyResponse(client, consensus, header, NewEnvelope(peer, b), hash)
			}
			if body == nil {
				bodyReqMeter.Mark(1)
				bodyRetryMeter.Mark(1)
				bodyCh = client.GetBody(ctx, hash)
			}
		}

		if header == nil || body == nil {
			continue
		}
		if body.isValidated() {
			return &SealedBlock{Header: header, Body: *body.validated}, nil
		}

		// Body arrived before the header (or was deferred) and is only now
		// being checked against it.
		peer, b := body.pendingValidation.Split()
		if err := consensus.ValidateBody(header.Header, b); err != nil {
			log.Debug("Received wrong body", "hash", hash, "err", err, "peer", peer)
			reportBadPeer(client, peer, ReasonBadBody, hash)
			body = nil
			bodyReqMeter.Mark(1)
			bodyRetryMeter.Mark(1)
			bodyCh = client.GetBody(ctx, hash)
			continue
		}
		return &SealedBlock{Header: header, Body: b}, nil
	}
}

// onBodyResponse validates body against header if it is already known,
// otherwise defers validation by stashing it as pendingValidation. Returns
// nil if the body was rejected (caller should retry the body request).
func onBodyResponse(client PeerClient, consensus Consensus, header *SealedHeader, env Envelope[*Body], hash common.Hash) *bodyResponse[*Body] {
	if header == nil {
		r := pendingBody(env)
		return &r
	}
	peer, b := env.Split()
	if err := consensus.ValidateBody(header.Header, b); err != nil {
		log.Debug("Received wrong body", "hash", hash, "err", err, "peer", peer)
		reportBadPeer(client, peer, ReasonBadBody, hash)
		return nil
	}
	r := validatedBody(b)
	return &r
}
