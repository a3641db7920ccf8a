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
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// fakePeerClient is a PeerClient test double that stores a chain of
// headers/bodies and answers every request immediately and honestly,
// unless a scenario-specific override has been queued for that request —
// the same shape as reth's TestFullBlockClient, extended with the ability
// to inject a single misbehaving response ahead of the honest one.
type fakePeerClient struct {
	mu      sync.Mutex
	headers map[common.Hash]*Header
	bodies  map[common.Hash]*Body

	headerOverrides  map[common.Hash][]HeaderResult
	bodyOverrides    map[common.Hash][]BodyResult
	headersOverrides []HeadersResult
	bodiesOverrides  []BodiesResult
	headerDelay      map[common.Hash]time.Duration

	reported []PeerID
}

func newFakePeerClient() *fakePeerClient {
	return &fakePeerClient{
		headers:         make(map[common.Hash]*Header),
		bodies:          make(map[common.Hash]*Body),
		headerOverrides: make(map[common.Hash][]HeaderResult),
		bodyOverrides:   make(map[common.Hash][]BodyResult),
		headerDelay:     make(map[common.Hash]time.Duration),
	}
}

// delayHeader makes the next, non-overridden GetHeader(hash) call resolve
// only after d — used to deterministically force the body response to win
// the race to the select loop for a given hash.
func (c *fakePeerClient) delayHeader(hash common.Hash, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerDelay[hash] = d
}

func (c *fakePeerClient) insert(header *SealedHeader, body *Body) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[header.Hash()] = header.Header
	c.bodies[header.Hash()] = body
}

// queueHeader queues a one-shot override for the next GetHeader(hash) call.
func (c *fakePeerClient) queueHeader(hash common.Hash, res HeaderResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerOverrides[hash] = append(c.headerOverrides[hash], res)
}

func (c *fakePeerClient) queueBody(hash common.Hash, res BodyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodyOverrides[hash] = append(c.bodyOverrides[hash], res)
}

func (c *fakePeerClient) queueHeaders(res HeadersResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headersOverrides = append(c.headersOverrides, res)
}

func (c *fakePeerClient) queueBodies(res BodiesResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodiesOverrides = append(c.bodiesOverrides, res)
}

func closedResult[T any](v T) <-chan T {
	ch := make(chan T, 1)
	ch <- v
	close(ch)
	return ch
}

func (c *fakePeerClient) GetHeader(_ context.Context, hash common.Hash) <-chan HeaderResult {
	c.mu.Lock()
	if q := c.headerOverrides[hash]; len(q) > 0 {
		c.headerOverrides[hash] = q[1:]
		c.mu.Unlock()
		return closedResult(q[0])
	}
	delay := c.headerDelay[hash]
	delete(c.headerDelay, hash)
	h := c.headers[hash] // nil if absent, matches "not available from this peer"
	c.mu.Unlock()

	res := HeaderResult{Envelope: NewEnvelope[*Header]("honest", h)}
	if delay <= 0 {
		return closedResult(res)
	}
	ch := make(chan HeaderResult, 1)
	go func() {
		time.Sleep(delay)
		ch <- res
		close(ch)
	}()
	return ch
}

func (c *fakePeerClient) GetBody(_ context.Context, hash common.Hash) <-chan BodyResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q := c.bodyOverrides[hash]; len(q) > 0 {
		c.bodyOverrides[hash] = q[1:]
		return closedResult(q[0])
	}
	b := c.bodies[hash]
	return closedResult(BodyResult{Envelope: NewEnvelope[*Body]("honest", b)})
}

func (c *fakePeerClient) GetHeaders(_ context.Context, req HeadersRequest) <-chan HeadersResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.headersOverrides) > 0 {
		res := c.headersOverrides[0]
		c.headersOverrides = c.headersOverrides[1:]
		return closedResult(res)
	}

	var out []*Header
	cur, ok := c.headers[req.Start]
	for ok && uint64(len(out)) < req.Limit {
		out = append(out, cur)
		cur, ok = c.headers[cur.ParentHash]
	}
	return closedResult(HeadersResult{Envelope: NewEnvelope("honest", out)})
}

func (c *fakePeerClient) GetBodies(_ context.Context, hashes []common.Hash) <-chan BodiesResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodiesOverrides) > 0 {
		res := c.bodiesOverrides[0]
		c.bodiesOverrides = c.bodiesOverrides[1:]
		return closedResult(res)
	}

	out := make([]*Body, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, c.bodies[h])
	}
	return closedResult(BodiesResult{Envelope: NewEnvelope("honest", out)})
}

func (c *fakePeerClient) ReportBadPeer(peer PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reported = append(c.reported, peer)
}

func (c *fakePeerClient) reportCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reported)
}

// fakeConsensus performs the same two structural checks a real consensus
// engine would plug in: body roots must match the header, and a header
// range must chain by parent hash with strictly incrementing numbers.
type fakeConsensus struct{}

func (fakeConsensus) ValidateBody(header *Header, body *Body) error {
	if header.TxHash != transactionsRoot(body.Transactions) {
		return errors.New("transactions root mismatch")
	}
	if header.UnclesHash != unclesRoot(body.Uncles) {
		return errors.New("uncles root mismatch")
	}
	return nil
}

func (fakeConsensus) ValidateHeaderRange(headers []*SealedHeader) error {
	for i := 1; i < len(headers); i++ {
		if headers[i].ParentHash != headers[i-1].Hash() {
			return errors.New("broken parent linkage")
		}
		if headers[i].Number != headers[i-1].Number+1 {
			return errors.New("non-contiguous numbers")
		}
	}
	return nil
}

func transactionsRoot(txs []*Transaction) common.Hash {
	if len(txs) == 0 {
		return emptyRootHash()
	}
	return rlpHash(txs)
}

func unclesRoot(uncles []*Header) common.Hash {
	if len(uncles) == 0 {
		return emptyUnclesHash()
	}
	return rlpHash(uncles)
}

// buildChain builds n sealed headers with empty bodies, numbered 0..n-1,
// each parented to the previous, mirroring go-ethereum test helpers'
// insert_headers_into_client pattern. Returns them ascending (oldest
// first).
func buildChain(n int) ([]*SealedHeader, map[common.Hash]*Body) {
	headers := make([]*SealedHeader, 0, n)
	bodies := make(map[common.Hash]*Body, n)

	var parent common.Hash
	for i := 0; i < n; i++ {
		h := &Header{
			ParentHash: parent,
			Number:     uint64(i),
			Time:       uint64(i) * 12,
			TxHash:     emptyRootHash(),
			UnclesHash: emptyUnclesHash(),
		}
		sealed := h.Seal()
		headers = append(headers, sealed)
		bodies[sealed.Hash()] = &Body{}
		parent = sealed.Hash()
	}
	return headers, bodies
}

func populateClient(client *fakePeerClient, headers []*SealedHeader, bodies map[common.Hash]*Body) {
	for _, h := range headers {
		client.insert(h, bodies[h.Hash()])
	}
}
