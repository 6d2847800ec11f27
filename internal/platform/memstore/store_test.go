package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardduty-billing/internal/platform/database"
)

type counter struct {
	store *Store
	value int
}

func (c *counter) Snapshot() func() {
	saved := c.value
	return func() { c.value = saved }
}

func (c *counter) inc(ctx context.Context) {
	unlock := c.store.Lock(ctx)
	defer unlock()
	c.value++
}

func TestWithinTxRestoresOnError(t *testing.T) {
	store := New()
	c := &counter{store: store}
	store.Register(c)

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		c.inc(ctx)
		c.inc(ctx)
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.value)

	hook := false
	err = store.WithinTx(context.Background(), func(ctx context.Context) error {
		c.inc(ctx)
		database.AfterCommit(ctx, func() { hook = true })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.value)
	assert.True(t, hook)
}

func TestLockSerializesOutsideTx(t *testing.T) {
	store := New()
	c := &counter{store: store}
	store.Register(c)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.inc(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.value)
}

func TestWithinTxRestoresAndUnlocksOnPanic(t *testing.T) {
	store := New()
	c := &counter{store: store}
	store.Register(c)

	hook := false
	assert.Panics(t, func() {
		_ = store.WithinTx(context.Background(), func(ctx context.Context) error {
			c.inc(ctx)
			database.AfterCommit(ctx, func() { hook = true })
			panic("boom")
		})
	})
	assert.Equal(t, 0, c.value)
	assert.False(t, hook)

	c.inc(context.Background())
	assert.Equal(t, 1, c.value)
}
