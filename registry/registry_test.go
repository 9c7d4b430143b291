package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClaimReaderAfterWriterPairsSameChannel(t *testing.T) {
	r := New()
	w := r.ClaimWriter()
	c := r.ClaimReader()
	require.Same(t, w, c)
	require.True(t, c.HasReader())
}

func TestClaimWriterAfterReaderPairsSameChannel(t *testing.T) {
	r := New()
	c := r.ClaimReader()
	w := r.ClaimWriter()
	require.Same(t, w, c)
	require.True(t, w.HasReader())
}

func TestFIFOOrderAcrossMultiplePairs(t *testing.T) {
	r := New()

	w1 := r.ClaimWriter()
	w2 := r.ClaimWriter()
	w3 := r.ClaimWriter()

	c1 := r.ClaimReader()
	c2 := r.ClaimReader()
	c3 := r.ClaimReader()

	require.Same(t, w1, c1)
	require.Same(t, w2, c2)
	require.Same(t, w3, c3)
}

func TestConcurrentPairingProducesNoDuplicatesAndNoLeaks(t *testing.T) {
	r := New()
	const n = 100

	writerChans := make(chan interface{}, n)
	readerChans := make(chan interface{}, n)

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			writerChans <- r.ClaimWriter()
		}()
		go func() {
			defer wg.Done()
			readerChans <- r.ClaimReader()
		}()
	}
	wg.Wait()
	close(writerChans)
	close(readerChans)

	seen := make(map[interface{}]int)
	for rc := range writerChans {
		seen[rc]++
	}
	for rc := range readerChans {
		seen[rc]++
	}

	require.Len(t, seen, n, "expected exactly n distinct relay channels")
	for rc, count := range seen {
		require.Equalf(t, 2, count, "channel %v should be claimed exactly twice (once per side)", rc)
	}

	stats := r.Stats()
	require.EqualValues(t, n, stats.ChannelsCreated)
	require.Zero(t, stats.ProducersWaiting)
	require.Zero(t, stats.ConsumersWaiting)
}
