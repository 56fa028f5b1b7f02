package tenantctx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent_Empty(t *testing.T) {
	id, ok := Current(context.Background())
	assert.False(t, ok)
	assert.Zero(t, id)
	assert.Equal(t, "", String(context.Background()))
}

func TestSetAndCurrent(t *testing.T) {
	ctx := Set(context.Background(), 42)

	id, ok := Current(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "42", String(ctx))
}

func TestSet_ZeroIsPresent(t *testing.T) {
	ctx := Set(context.Background(), 0)

	id, ok := Current(ctx)
	assert.True(t, ok)
	assert.Zero(t, id)

	got, err := MustCurrent(ctx)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestClear_ShadowsParent(t *testing.T) {
	parent := Set(context.Background(), 7)
	child := Clear(parent)

	_, ok := Current(child)
	assert.False(t, ok)

	id, ok := Current(parent)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)
}

func TestMustCurrent_Missing(t *testing.T) {
	_, err := MustCurrent(context.Background())
	assert.ErrorIs(t, err, ErrMissingTenantContext)
}

func TestConcurrentUnitsOfWork(t *testing.T) {
	root := context.Background()
	var wg sync.WaitGroup
	errs := make(chan string, 100)

	for i := uint64(1); i <= 100; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			ctx := Set(root, id)
			for j := 0; j < 50; j++ {
				got, ok := Current(ctx)
				if !ok || got != id {
					errs <- "tenant leaked between goroutines"
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
	_, ok := Current(root)
	assert.False(t, ok)
}
