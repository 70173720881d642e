package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/worldsync/server/internal/core/ident"
)

func TestQueueDrainsInOrderOnce(t *testing.T) {
	q := NewQueue()
	q.Push(Command{Kind: Spawn, Ref: ident.NewRef(1, 0)})
	q.Push(Command{Kind: Chat, Text: "a"}, Command{Kind: Remove, Ref: ident.NewRef(1, 0)})
	assert.Equal(t, 3, q.Len())

	got := q.Drain()
	kinds := make([]Kind, 0, len(got))
	for _, c := range got {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []Kind{Spawn, Chat, Remove}, kinds)

	assert.Empty(t, q.Drain(), "commands run exactly once")
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(Command{Kind: SetMovement, Ref: ident.NewRef(uint16(p), 0)}, Command{Kind: Teleport, Ref: ident.NewRef(uint16(p), 0)})
			}
		}(p)
	}
	wg.Wait()

	got := q.Drain()
	assert.Len(t, got, 8*100*2)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, SetMovement, got[i].Kind)
		assert.Equal(t, Teleport, got[i+1].Kind, "batches are not interleaved")
		assert.Equal(t, got[i].Ref, got[i+1].Ref)
	}
}
