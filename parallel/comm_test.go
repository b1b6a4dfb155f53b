// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parallel

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSerial(t *testing.T) {
	var c Comm = Serial{}
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, complex(1, 2), c.Allreduce(complex(1, 2)))
}

func TestGroupAllreduce(t *testing.T) {
	const n, rounds = 4, 50
	comms := NewGroup(n)
	got := make([][]complex128, n)
	err := Run(comms, func(c Comm) error {
		for i := 0; i < rounds; i++ {
			v := complex(float64(c.Rank()+1), float64(i))
			got[c.Rank()] = append(got[c.Rank()], c.Allreduce(v))
		}
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < n; r++ {
		require.Len(t, got[r], rounds)
		for i, v := range got[r] {
			assert.Equal(t, complex(10, float64(n*i)), v, "rank %d round %d", r, i)
		}
	}
}

func TestRunError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(NewGroup(3), func(c Comm) error {
		if c.Rank() == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "rank 2")
}

func TestNewGroupPanics(t *testing.T) {
	assert.Panics(t, func() { NewGroup(0) })
}
