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

import "github.com/ethereum/go-ethereum/metrics"

// Counters for sub-request traffic, split by kind, in the same spirit as
// eth/downloader's metrics.go registering one timer/meter per queue. These
// are package-global registered meters (go-ethereum's own convention:
// metrics.NewRegisteredMeter against the default registry) rather than
// per-Client instances, since a process typically runs one download engine.
var (
	headerReqMeter      = metrics.NewRegisteredMeter("downloader/fullblock/header/requests", nil)
	headerRetryMeter    = metrics.NewRegisteredMeter("downloader/fullblock/header/retries", nil)
	bodyReqMeter        = metrics.NewRegisteredMeter("downloader/fullblock/body/requests", nil)
	bodyRetryMeter      = metrics.NewRegisteredMeter("downloader/fullblock/body/retries", nil)
	headerRangeReqMeter = metrics.NewRegisteredMeter("downloader/fullblock/headerrange/requests", nil)
	bodyRangeReqMeter   = metrics.NewRegisteredMeter("downloader/fullblock/bodyrange/requests", nil)
	badPeerMeter        = metrics.NewRegisteredMeter("downloader/fullblock/badpeer/reports", nil)
)
