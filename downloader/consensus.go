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

// Consensus is the pluggable rule set this engine validates downloaded
// data against. It is deliberately narrow: just the two checks the
// download path needs, not the full mining/sealing surface a chain's
// consensus engine usually exposes elsewhere in the stack.
type Consensus interface {
	// ValidateBody performs a cheap, structural check of body against the
	// header it is claimed to belong to (e.g. a transactions-root check).
	ValidateBody(header *Header, body *Body) error
	// ValidateHeaderRange verifies parent/child linkage and protocol rules
	// over a contiguous, ascending (rising) sequence of headers.
	ValidateHeaderRange(headersAscending []*SealedHeader) error
}
