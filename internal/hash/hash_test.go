// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint64(t *testing.T) {
	require.Equal(t, uint64(0), Uint64(0))
	require.NotEqual(t, Uint64(1), Uint64(2))
	require.Equal(t, Uint64(42), Uint64(42))
}
