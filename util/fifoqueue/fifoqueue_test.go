package fifoqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOQueue(t *testing.T) {
	t.Run("order preserved", func(t *testing.T) {
		q := New[int]()
		for i := 0; i < 100; i++ {
			q.Push(i)
		}
		q.Close()

		collected := make([]int, 0, 100)
		q.Consume(func(e int) {
			collected = append(collected, e)
		})
		require.EqualValues(t, 100, len(collected))
		for i, e := range collected {
			require.EqualValues(t, i, e)
		}
	})
	t.Run("concurrent producer", func(t *testing.T) {
		q := New[int]()
		var wg sync.WaitGroup
		wg.Add(1)

		sum := 0
		go func() {
			q.Consume(func(e int) {
				sum += e
			})
			wg.Done()
		}()
		for i := 1; i <= 10; i++ {
			q.Push(i)
		}
		q.Close()
		wg.Wait()
		require.EqualValues(t, 55, sum)
	})
	t.Run("push after close panics", func(t *testing.T) {
		q := New[int]()
		q.Close()
		require.Panics(t, func() {
			q.Push(1)
		})
	})
}
