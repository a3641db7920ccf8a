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

// Client is a stateless factory binding a PeerClient and a Consensus
// policy, producing single-block and range download operations. It carries
// no state of its own beyond these two handles and the optional header
// cache (see WithHeaderCacheSize); every call to
// GetFullBlock/GetFullBlockRange starts a fresh, independent operation.
type Client struct {
	peers     PeerClient
	consensus Consensus
	headerLRU *headerCache
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHeaderCacheSize enables the recently-sealed-header cache (see
// cache.go) with the given size, or defaultHeaderCacheSize if n <= 0. The
// cache is off by default — a plain NewClient call never allocates or
// consults it, and every header is hashed directly via Header.Hash().
func WithHeaderCacheSize(n int) Option {
	return func(c *Client) { c.headerLRU = newHeaderCache(n) }
}

// NewClient creates a Client bound to the given PeerClient and Consensus.
// The header cache is disabled unless WithHeaderCacheSize is passed.
func NewClient(peers PeerClient, consensus Consensus, opts ...Option) *Client {
	c := &Client{
		peers:     peers,
		consensus: consensus,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFullBlock downloads and validates a single block by hash.
//
// Cancel safety: ctx cancellation is the only way this ever returns early;
// all other failures (transport errors, bad peers, consensus rejections)
// are retried internally against a fresh peer, forever.
func (c *Client) GetFullBlock(ctx context.Context, hash common.Hash) (*SealedBlock, error) {
	return runSingleBlockFetch(ctx, c.peers, c.consensus, c.headerLRU, hash)
}

// GetFullBlockRange downloads and validates count consecutive blocks
// starting at hash, in descending block-number order. result[0].Hash()
// equals hash; len(result) == count.
func (c *Client) GetFullBlockRange(ctx context.Context, hash common.Hash, count uint64) ([]*SealedBlock, error) {
	return runRangeBlockFetch(ctx, c.peers, c.consensus, c.headerLRU, hash, count)
}
