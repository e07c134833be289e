package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketTryAcquireDrainsAndRefills(t *testing.T) {
	a := assert.New(t)

	b := newBucket(10, 10)
	ok, delay := b.tryAcquire(10)
	a.True(ok)
	a.Equal(float64(0), delay)

	ok, delay = b.tryAcquire(1)
	a.False(ok)
	a.InDelta(0.1, delay, 1e-6)

	b.lastRefill = time.Now().Add(-time.Second)
	ok, _ = b.tryAcquire(5)
	a.True(ok)
}

func TestBucketPeekDoesNotMutate(t *testing.T) {
	a := assert.New(t)

	b := newBucket(5, 1)
	ok, _ := b.peek(5)
	a.True(ok)

	ok, _ = b.tryAcquire(5)
	a.True(ok)
}

func TestBucketTokensAvailableReflectsRefill(t *testing.T) {
	a := assert.New(t)

	b := newBucket(10, 10)
	_, _ = b.tryAcquire(10)
	a.InDelta(0, b.tokensAvailable(), 1e-6)

	b.lastRefill = time.Now().Add(-time.Second)
	a.InDelta(10, b.tokensAvailable(), 1e-6)
}
