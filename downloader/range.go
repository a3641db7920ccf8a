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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// rangeState holds the mutable bookkeeping of an in-flight range fetch. It
// is deliberately free of channels and context: those belong to the
// driving select loop in runRangeBlockFetch, not to the domain state that
// loop mutates.
type rangeState struct {
	client    PeerClient
	consensus Consensus
	cache     *headerCache

	startHash common.Hash
	count     uint64

	headers        []*SealedHeader // nil until the header-range response is accepted; descending
	pendingHeaders []*SealedHeader // deque of headers still needing a body; descending
	bodies         map[common.Hash]bodyResponse[*Body]

	bodiesStarted bool
}

func newRangeState(client PeerClient, consensus Consensus, cache *headerCache, startHash common.Hash, count uint64) *rangeState {
	return &rangeState{
		client:    client,
		consensus: consensus,
		cache:     cache,
		startHash: startHash,
		count:     count,
		bodies:    make(map[common.Hash]bodyResponse[*Body], count),
	}
}

func (s *rangeState) isBodiesComplete() bool {
	return uint64(len(s.bodies)) == s.count
}

// insertBody pairs a single incoming body with the header at the front of
// pendingHeaders, positionally — the PeerClient contract guarantees bodies
// come back in request order, so the Nth body belongs to the Nth
// still-pending header.
func (s *rangeState) insertBody(resp bodyResponse[*Body]) {
	if len(s.pendingHeaders) == 0 {
		return
	}
	h := s.pendingHeaders[0]
	s.pendingHeaders = s.pendingHeaders[1:]
	s.bodies[h.Hash()] = resp
}

func (s *rangeState) insertBodies(resps []bodyResponse[*Body]) {
	for _, r := range resps {
		s.insertBody(r)
	}
}

// remainingHashes returns the hashes this state is still missing a body
// for, in descending order, for use in the next GetBodies call.
func (s *rangeState) remainingHashes() []common.Hash {
	hashes := make([]common.Hash, len(s.pendingHeaders))
	for i, h := range s.pendingHeaders {
		hashes[i] = h.Hash()
	}
	return hashes
}

// onHeadersResponse validates an incoming header-range response. It
// returns true if the response was accepted (headers/pendingHeaders are now
// populated and a bodies request should be issued if one hasn't been
// already); false means the caller must retry the header-range request.
func (s *rangeState) onHeadersResponse(env Envelope[[]*Header]) bool {
	peer, raw := env.Split()

	// 1. Wrong length: discard silently and retry. A short response can be
	// an honest peer hitting a soft limit near the chain head, not
	// necessarily misbehavior, so this is not reported.
	if uint64(len(raw)) != s.count {
		return false
	}

	sealed := make([]*SealedHeader, len(raw))
	seen := mapset.NewThreadUnsafeSet[common.Hash]()
	for i, h := range raw {
		sh := NewSealedHeader(h, s.cache.seal(h))
		sealed[i] = sh
		seen.Add(sh.Hash())
	}

	// 1b. A peer repeating the same header to pad out a short range to the
	// requested length is indistinguishable from a length mismatch unless
	// we check for duplicates explicitly; a set makes that check O(n)
	// instead of an O(n^2) nested scan.
	if seen.Cardinality() != len(sealed) {
		log.Debug("Received header range with duplicate entries", "start", s.startHash, "peer", peer)
		reportBadPeer(s.client, peer, ReasonWrongRangeLength, s.startHash)
		return false
	}

	// 2. Defensive sort: falling (descending) by block number.
	sort.Slice(sealed, func(i, j int) bool { return sealed[i].Number > sealed[j].Number })

	// 3. The first (highest) header must be the one requested.
	if sealed[0].Hash() != s.startHash {
		log.Debug("Received wrong header range start", "expected", s.startHash, "received", sealed[0].Hash(), "peer", peer)
		reportBadPeer(s.client, peer, ReasonWrongRangeStart, s.startHash)
		return false
	}

	// 4. Validate the contiguous ascending (rising) view against consensus.
	ascending := make([]*SealedHeader, len(sealed))
	for i, h := range sealed {
		ascending[len(sealed)-1-i] = h
	}
	if err := s.consensus.ValidateHeaderRange(ascending); err != nil {
		log.Debug("Received bad header range", "start", s.startHash, "err", err, "peer", peer)
		reportBadPeer(s.client, peer, ReasonBadHeaderRange, s.startHash)
		return false
	}

	// 5. Store.
	s.headers = sealed
	s.pendingHeaders = append([]*SealedHeader(nil), sealed...)
	return true
}

// onBodiesResponse wraps each incoming body as pendingValidation and pairs
// it positionally with the front of pendingHeaders.
func (s *rangeState) onBodiesResponse(env Envelope[[]*Body]) {
	peer, bodies := env.Split()
	wrapped := make([]bodyResponse[*Body], len(bodies))
	for i, b := range bodies {
		wrapped[i] = pendingBody(NewEnvelope(peer, b))
	}
	s.insertBodies(wrapped)
}

// takeBlocks attempts to assemble the final result. It returns (blocks,
// true) once every header has a validated body. If bodies are complete but
// one or more fail ValidateBody, it reports the offending peer, requeues
// that header onto pendingHeaders, preserves the already-validated work,
// and returns (nil, false) — the caller must then issue a new GetBodies
// call for remainingHashes().
func (s *rangeState) takeBlocks() ([]*SealedBlock, bool) {
	if !s.isBodiesComplete() {
		return nil, false
	}

	blocks := make([]*SealedBlock, 0, len(s.headers))
	needsRetry := false

	for _, h := range s.headers {
		resp, ok := s.bodies[h.Hash()]
		if !ok {
			continue
		}
		delete(s.bodies, h.Hash())

		if resp.isValidated() {
			blocks = append(blocks, &SealedBlock{Header: h, Body: *resp.validated})
			continue
		}

		peer, b := resp.pendingValidation.Split()
		if err := s.consensus.ValidateBody(h.Header, b); err != nil {
			log.Debug("Received wrong body in range response", "hash", h.Hash(), "err", err, "peer", peer)
			reportBadPeer(s.client, peer, ReasonBadBody, h.Hash())
			s.pendingHeaders = append(s.pendingHeaders, h)
			needsRetry = true
			continue
		}
		blocks = append(blocks, &SealedBlock{Header: h, Body: b})
	}

	if needsRetry {
		// Preserve already-validated work: put the successfully validated
		// blocks back into the bodies map so they aren't re-downloaded.
		for _, blk := range blocks {
			s.bodies[blk.Header.Hash()] = validatedBody(blk.Body)
		}
		return nil, false
	}
	return blocks, true
}

// runRangeBlockFetch downloads and validates count consecutive blocks
// starting at startHash, descending. It first fetches the header range; no
// body request is issued until that range is accepted. Once accepted, it
// fetches bodies positionally, retrying only the still-missing or
// still-invalid subset on any failure.
func runRangeBlockFetch(ctx context.Context, client PeerClient, consensus Consensus, cache *headerCache, startHash common.Hash, count uint64) ([]*SealedBlock, error) {
	s := newRangeState(client, consensus, cache, startHash, count)

	headersCh := client.GetHeaders(ctx, HeadersRequest{Start: startHash, Limit: count, Reverse: true})
	var bodiesCh <-chan BodiesResult
	headerRangeReqMeter.Mark(1)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case res := <-headersCh:
			headersCh = nil
			accepted := false
			if res.Err != nil {
				log.Debug("Header range download failed", "start", startHash, "err", res.Err)
			} else {
				accepted = s.onHeadersResponse(res.Envelope)
			}
			if !accepted {
				headerRangeReqMeter.Mark(1)
				headersCh = client.GetHeaders(ctx, HeadersRequest{Start: startHash, Limit: count, Reverse: true})
				continue
			}
			if !s.bodiesStarted {
				s.bodiesStarted = true
				bodiesCh = client.GetBodies(ctx, s.remainingHashes())
				bodyRangeReqMeter.Mark(1)
			}

		case res := <-bodiesCh:
			bodiesCh = nil
			if res.Err != nil {
				log.Debug("Body range download failed", "start", startHash, "err", res.Err)
			} else {
				s.onBodiesResponse(res.Envelope)
			}
			if !s.isBodiesComplete() {
				bodyRangeReqMeter.Mark(1)
				bodiesCh = client.GetBodies(ctx, s.remainingHashes())
			}
		}

		if s.headers == nil {
			continue
		}
		blocks, done := s.takeBlocks()
		if done {
			return blocks, nil
		}
		if s.headers != nil && !s.isBodiesComplete() && bodiesCh == nil {
			// takeBlocks requeued at least one header after a validation
			// failure; issue the follow-up request for what remains.
			bodyRangeReqMeter.Mark(1)
			bodiesCh = client.GetBodies(ctx, s.remainingHashes())
		}
	}
}
