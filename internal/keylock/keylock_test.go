package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/internal/keylock"
)

func TestLockSerializesSameKey(t *testing.T) {
	locks := keylock.New()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("r1:/a.txt")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Zero(t, locks.Len())
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	locks := keylock.New()

	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	require.Equal(t, 1, locks.Len())
}
