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

// Package downloader implements the full-block download engine: given a
// block hash (and optionally a range count) it concurrently fetches headers
// and bodies from a pool of untrusted peers, validates them against the
// requested identifier and a pluggable consensus policy, and assembles
// sealed blocks.
package downloader

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// PeerID identifies the remote endpoint that produced a response. The
// engine never interprets it, only forwards it to ReportBadPeer and to the
// bad-peer event feed.
type PeerID string

// BlockNumber is the unsigned height of a block.
type BlockNumber = uint64

// Header is the minimal structured record the engine understands: a parent
// link, a height, and enough material to compute its own hash. Real chain
// headers carry far more (difficulty, gas limits, base fee, ...); this
// engine only needs what it validates or hashes, and treats the rest as
// opaque extra data so it never has to be taught about a new header field.
type Header struct {
	ParentHash  common.Hash  `json:"parentHash" gencodec:"required"`
	Number      uint64       `json:"number"      gencodec:"required"`
	Time        uint64       `json:"timestamp"   gencodec:"required"`
	TxHash      common.Hash  `json:"transactionsRoot"`
	UnclesHash  common.Hash  `json:"sha3Uncles"`
	Extra       []byte       `json:"extraData"`
	Withdrawals *common.Hash `json:"withdrawalsRoot" rlp:"optional"`
}

// Hash computes the header's identity by RLP-encoding it and hashing the
// result. This is the "expensive" half of sealing referenced throughout the
// engine: the fetchers call it once per received header (unless the
// optional header cache already holds the hash for the same bytes), the
// result is cached in a SealedHeader, and unsealing (reading it back) is
// free.
func (h *Header) Hash() common.Hash {
	return rlpHash(h)
}

func rlpHash(x interface{}) (h common.Hash) {
	b, err := rlp.EncodeToBytes(x)
	if err != nil {
		// Header is a fixed, statically-typed struct; encoding it can only
		// fail on a programming error (e.g. an unencodable field type).
		panic(fmt.Sprintf("downloader: failed to rlp-encode header: %v", err))
	}
	return crypto.Keccak256Hash(b)
}

// Seal computes the header's hash and returns it paired with the header, so
// that repeated reads of the identity never re-hash.
func (h *Header) Seal() *SealedHeader {
	return &SealedHeader{Header: h, hash: h.Hash()}
}

// SealedHeader is a Header with its hash precomputed and cached.
type SealedHeader struct {
	*Header
	hash common.Hash
}

// NewSealedHeader pairs a header with an already-known hash, skipping the
// (expensive) reseal. The fetchers use it with the hash returned by the
// header cache's seal method; the hash is trusted as given and not
// recomputed here.
func NewSealedHeader(header *Header, hash common.Hash) *SealedHeader {
	return &SealedHeader{Header: header, hash: hash}
}

// Hash returns the cached identity. Free: no hashing occurs here.
func (s *SealedHeader) Hash() common.Hash {
	return s.hash
}

// Unseal discards the cached hash and returns the bare header.
func (s *SealedHeader) Unseal() *Header {
	return s.Header
}

// Transaction is an opaque transactional entry. The engine never inspects
// its contents beyond passing it through Consensus.ValidateBody.
type Transaction struct {
	Hash common.Hash
	Raw  []byte
}

// Withdrawal is an opaque withdrawal entry, opaque to the engine for the
// same reason as Transaction.
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64
}

// Body is the transactional/ancillary payload of a block. It is opaque to
// this package except through the Consensus capability.
type Body struct {
	Transactions []*Transaction
	Uncles       []*Header
	Withdrawals  []*Withdrawal
}

// IsEmpty reports whether this body is structurally known to be empty under
// protocol convention (no transactions, no uncles, no withdrawals). Bodies
// matching this shape are what BlockResponse.Empty represents at the
// package boundary; the fetchers in this package never produce Empty
// themselves; they always resolve Full once a body round trip succeeds.
func (b *Body) IsEmpty() bool {
	return b == nil || (len(b.Transactions) == 0 && len(b.Uncles) == 0 && len(b.Withdrawals) == 0)
}

// SealedBlock is a fully assembled, validated block: a sealed header paired
// with the body that was validated against it.
type SealedBlock struct {
	Header *SealedHeader
	Body   *Body
}

// Size is a heuristic in-memory size estimate, handy for a host's
// mempool-adjacent bookkeeping. The engine's own logic never calls this.
func (b *SealedBlock) Size() int {
	if b == nil {
		return 0
	}
	n := len(common.Hash{}) + 8 + 8 + len(common.Hash{}) + len(common.Hash{}) + len(b.Header.Extra)
	for _, tx := range b.Body.Transactions {
		n += len(tx.Raw)
	}
	n += len(b.Body.Uncles) * 64
	n += len(b.Body.Withdrawals) * 48
	return n
}

// BlockResponse is the sum type consumed at this package's boundary: either
// a fully materialized block, or a sealed header whose body is structurally
// known to be absent. It is not produced by the fetchers in this package —
// they always yield Full — but is useful to a host assembling a mixed
// stream of full and protocol-level-empty blocks (see PairHeadersAndBodies).
type BlockResponse struct {
	full  *SealedBlock
	empty *SealedHeader
}

// FullBlockResponse wraps a materialized block as a BlockResponse.
func FullBlockResponse(block *SealedBlock) BlockResponse {
	return BlockResponse{full: block}
}

// EmptyBlockResponse wraps a bodyless header as a BlockResponse.
func EmptyBlockResponse(header *SealedHeader) BlockResponse {
	return BlockResponse{empty: header}
}

// IsFull reports whether this response carries a full block.
func (r BlockResponse) IsFull() bool {
	return r.full != nil
}

// Full returns the full block and true, or (nil, false) if this response is
// Empty.
func (r BlockResponse) Full() (*SealedBlock, bool) {
	return r.full, r.full != nil
}

// Empty returns the bodyless header and true, or (nil, false) if this
// response is Full.
func (r BlockResponse) Empty() (*SealedHeader, bool) {
	return r.empty, r.empty != nil
}

// BlockNumber returns the block number regardless of which variant this
// response holds.
func (r BlockResponse) BlockNumber() uint64 {
	if r.full != nil {
		return r.full.Header.Number
	}
	return r.empty.Number
}

// PairHeadersAndBodies zips a descending sequence of sealed headers against
// a hash-keyed body map, producing one BlockResponse per header: Empty if
// the header's body is structurally empty and absent from bodies, Full
// otherwise. Panics if a non-empty header has no matching entry in bodies,
// since that indicates a caller bug (headers and bodies must already be
// known consistent by this point) rather than a recoverable runtime
// condition.
//
// Grounded on reth's bodies/test_utils.rs::zip_blocks helper; offered here
// for hosts that maintain their own header/body stores. The fetchers in this
// package do not call it: they always produce full blocks.
func PairHeadersAndBodies(headers []*SealedHeader, bodies map[common.Hash]*Body) []BlockResponse {
	out := make([]BlockResponse, 0, len(headers))
	for _, header := range headers {
		body, ok := bodies[header.Hash()]
		switch {
		case ok:
			out = append(out, FullBlockResponse(&SealedBlock{Header: header, Body: body}))
		case bodyImpliedEmpty(header):
			out = append(out, EmptyBlockResponse(header))
		default:
			panic(fmt.Sprintf("downloader: missing body for non-empty header %s", header.Hash()))
		}
	}
	return out
}

func bodyImpliedEmpty(header *SealedHeader) bool {
	return header.TxHash == emptyRootHash() && header.UnclesHash == emptyUnclesHash() && header.Withdrawals == nil
}

var (
	emptyRoot       common.Hash
	emptyUncles     common.Hash
	emptyRootOnce   sync.Once
	emptyUnclesOnce sync.Once
)

func emptyRootHash() common.Hash {
	emptyRootOnce.Do(func() { emptyRoot = rlpHash([]*Transaction{}) })
	return emptyRoot
}

func emptyUnclesHash() common.Hash {
	emptyUnclesOnce.Do(func() { emptyUncles = rlpHash([]*Header{}) })
	return emptyUncles
}

// Envelope pairs response data with the peer that produced it.
type Envelope[T any] struct {
	peer PeerID
	data T
}

// NewEnvelope constructs an Envelope.
func NewEnvelope[T any](peer PeerID, data T) Envelope[T] {
	return Envelope[T]{peer: peer, data: data}
}

// Peer returns the originating peer id.
func (e Envelope[T]) Peer() PeerID {
	return e.peer
}

// Data returns the wrapped value.
func (e Envelope[T]) Data() T {
	return e.data
}

// Split returns the peer id and the wrapped value.
func (e Envelope[T]) Split() (PeerID, T) {
	return e.peer, e.data
}

// bodyResponse is the internal state of a body while it is in flight: it
// either arrived before the corresponding header and is waiting to be
// validated (pendingValidation), or it has already been checked against the
// header it will be paired with (validated).
type bodyResponse[B any] struct {
	pendingValidation *Envelope[B]
	validated         *B
}

func pendingBody[B any](env Envelope[B]) bodyResponse[B] {
	return bodyResponse[B]{pendingValidation: &env}
}

func validatedBody[B any](body B) bodyResponse[B] {
	return bodyResponse[B]{validated: &body}
}

func (r bodyResponse[B]) isValidated() bool {
	return r.validated != nil
}
