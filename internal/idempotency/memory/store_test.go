package memory

import (
	"context"
	"sync"
	"testing"
)

func TestStoreAcquire(t *testing.T) {
	t.Run("first acquire claims the key", func(t *testing.T) {
		store := NewStore()

		claimed, err := store.Acquire(context.Background(), "webhook:bitpay:evt-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !claimed {
			t.Error("expected first acquire to claim")
		}
	})

	t.Run("second acquire reports duplicate without error", func(t *testing.T) {
		store := NewStore()
		ctx := context.Background()

		if _, err := store.Acquire(ctx, "webhook:bitpay:evt-1"); err != nil {
			t.Fatalf("first acquire failed: %v", err)
		}

		claimed, err := store.Acquire(ctx, "webhook:bitpay:evt-1")
		if err != nil {
			t.Fatalf("expected no error on duplicate, got %v", err)
		}
		if claimed {
			t.Error("expected duplicate acquire to return false")
		}
	})

	t.Run("exactly one of N concurrent acquires wins", func(t *testing.T) {
		store := NewStore()
		ctx := context.Background()

		const workers = 32
		var wg sync.WaitGroup
		results := make(chan bool, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := store.Acquire(ctx, "webhook:bitpay:evt-race")
				if err != nil {
					t.Errorf("acquire failed: %v", err)
					return
				}
				results <- claimed
			}()
		}
		wg.Wait()
		close(results)

		winners := 0
		for claimed := range results {
			if claimed {
				winners++
			}
		}
		if winners != 1 {
			t.Errorf("expected exactly one winner, got %d", winners)
		}
	})

	t.Run("release allows a key to be re-acquired", func(t *testing.T) {
		store := NewStore()
		ctx := context.Background()

		if _, err := store.Acquire(ctx, "verify:bitpay:txn-1"); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if err := store.Release(ctx, "verify:bitpay:txn-1"); err != nil {
			t.Fatalf("release failed: %v", err)
		}

		claimed, err := store.Acquire(ctx, "verify:bitpay:txn-1")
		if err != nil {
			t.Fatalf("re-acquire failed: %v", err)
		}
		if !claimed {
			t.Error("expected released key to be claimable again")
		}
	})
}
