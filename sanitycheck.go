// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package rdm

// sanity check the configuration
func init() {
	if DefaultFailureThreshold < 1 {
		panic("DefaultFailureThreshold < 1")
	}
	if DefaultPollTimeout >= DefaultRequestTimeout {
		panic("DefaultPollTimeout >= DefaultRequestTimeout")
	}
	if DefaultIdleTimeout <= DefaultPollTimeout {
		panic("DefaultIdleTimeout <= DefaultPollTimeout")
	}
	if DefaultClientCallPrefix == DefaultServerCallPrefix {
		panic("DefaultClientCallPrefix == DefaultServerCallPrefix")
	}
	if DefaultMaxBodySize < 64 {
		panic("DefaultMaxBodySize < 64")
	}
}
