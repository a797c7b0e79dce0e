package solana

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackOffFactory(t *testing.T) {
	t.Run("fixed repeats the base delay", func(t *testing.T) {
		f, err := NewBackOffFactory(PolicyFixed, time.Second)
		require.NoError(t, err)

		b := f()
		for i := 0; i < 5; i++ {
			assert.Equal(t, time.Second, b.NextBackOff())
		}
	})

	t.Run("exponential doubles up to the cap", func(t *testing.T) {
		f, err := NewBackOffFactory(PolicyExponential, time.Second)
		require.NoError(t, err)

		b := f()
		var got []time.Duration
		for i := 0; i < 6; i++ {
			got = append(got, b.NextBackOff())
		}
		assert.Equal(t, []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second,
			8 * time.Second, 8 * time.Second, 8 * time.Second,
		}, got)
	})

	t.Run("jittered stays within the randomization window", func(t *testing.T) {
		f, err := NewBackOffFactory(PolicyJittered, time.Second)
		require.NoError(t, err)

		d := f().NextBackOff()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	})

	t.Run("each call returns an independent policy", func(t *testing.T) {
		f, err := NewBackOffFactory(PolicyExponential, time.Second)
		require.NoError(t, err)

		first := f()
		first.NextBackOff()
		first.NextBackOff()
		assert.Equal(t, time.Second, f().NextBackOff())
	})

	t.Run("rejects unknown policy and bad delay", func(t *testing.T) {
		_, err := NewBackOffFactory("linear", time.Second)
		assert.Error(t, err)

		_, err = NewBackOffFactory(PolicyFixed, 0)
		assert.Error(t, err)
	})
}
