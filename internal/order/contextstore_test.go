package order

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextStoreLifecycle(t *testing.T) {
	s := NewContextStore()

	_, ok := s.Get("c1")
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	s.Put("c1", *pendingTawouk())
	got, ok := s.Get("c1")
	require.True(t, ok)
	assert.Equal(t, int64(500000), got.PriceValue())
	assert.Equal(t, 1, s.Len())

	// Get hands out a copy.
	got.Items[0].Quantity = 99
	again, _ := s.Get("c1")
	assert.Equal(t, 2, again.Items[0].Quantity)

	s.Delete("c1")
	_, ok = s.Get("c1")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.entries)
}

func TestContextStoreUpdateLazyCreate(t *testing.T) {
	s := NewContextStore()
	s.Update("c1", func(cur *models.OrderContext) *models.OrderContext {
		assert.Nil(t, cur)
		return &models.OrderContext{Items: []models.OrderItem{}}
	})
	assert.Equal(t, 1, s.Len())

	s.Update("c1", func(cur *models.OrderContext) *models.OrderContext {
		require.NotNil(t, cur)
		cur.Name = "Rita"
		return cur
	})
	got, _ := s.Get("c1")
	assert.Equal(t, "Rita", got.Name)
}

func TestContextStoreSerializesPerCustomer(t *testing.T) {
	s := NewContextStore()
	const workers = 50
	const perWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			other := fmt.Sprintf("other-%d", w)
			for i := 0; i < perWorker; i++ {
				s.Update("shared", func(cur *models.OrderContext) *models.OrderContext {
					if cur == nil {
						cur = &models.OrderContext{Items: []models.OrderItem{{ID: "a", Name: "Tawouk"}}}
					}
					cur.Items[0].Quantity++
					return cur
				})
				s.Put(other, models.OrderContext{})
			}
		}(w)
	}
	wg.Wait()

	got, ok := s.Get("shared")
	require.True(t, ok)
	assert.Equal(t, workers*perWorker, got.Items[0].Quantity)
	assert.Equal(t, workers+1, s.Len())
}

func TestContextStoreEvictUnderContention(t *testing.T) {
	s := NewContextStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Put("c", models.OrderContext{Name: "x"})
			} else {
				s.Delete("c")
			}
		}(i)
	}
	wg.Wait()

	_, ok := s.Get("c")
	if ok {
		assert.Equal(t, 1, s.Len())
	} else {
		assert.Zero(t, s.Len())
	}
}
