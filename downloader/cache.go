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
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultHeaderCacheSize = 256

// headerKey identifies a header by its full RLP encoding, the same bytes
// Header.Hash() feeds to keccak256. Nothing short of the complete encoding
// is safe to key on: Header is untrusted adversarial input, and any
// projection that drops a field lets two distinct, attacker-controlled
// headers collide on the key while differing in the dropped field, which
// would make the cache return one header's hash for another's bytes.
type headerKey string

func keyOf(h *Header) headerKey {
	b, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic("downloader: failed to rlp-encode header for cache key: " + err.Error())
	}
	return headerKey(b)
}

// headerCache short-circuits re-sealing a header whose exact bytes this
// process has already hashed once, which matters when two racing peers
// answer the same header request with identical content: without it, every
// racing response pays the full keccak cost again. It is an optional,
// off-by-default adjunct: a nil *headerCache (the Client default) makes
// seal fall back to plain Header.Hash(), so the core retry algorithm is
// unaffected unless a caller opts in via WithHeaderCacheSize.
type headerCache struct {
	cache *lru.Cache[headerKey, common.Hash]
}

// newHeaderCache builds an enabled cache of the given size (or
// defaultHeaderCacheSize if size <= 0). Only called from
// WithHeaderCacheSize; the zero value of Client leaves headerLRU nil.
func newHeaderCache(size int) *headerCache {
	if size <= 0 {
		size = defaultHeaderCacheSize
	}
	c, _ := lru.New[headerKey, common.Hash](size)
	return &headerCache{cache: c}
}

// seal returns header.Hash(), consulting the cache first and populating it
// on miss. A nil receiver (caching disabled) always recomputes.
func (c *headerCache) seal(h *Header) common.Hash {
	if c == nil {
		return h.Hash()
	}
	key := keyOf(h)
	if hash, ok := c.cache.Get(key); ok {
		return hash
	}
	hash := h.Hash()
	c.cache.Add(key, hash)
	return hash
}
