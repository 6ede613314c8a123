package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/chatd/internal/logger"
	"github.com/codefionn/chatd/internal/metrics"
	"github.com/codefionn/chatd/internal/securemem"
)

var log = logger.Named("llm")

// Factory builds a Backend bound to one API key.
type Factory func(ctx context.Context, apiKey string) (Backend, error)

// RotatingClient hides a pool of API keys behind one Backend. When the
// active key reports exhausted quota it moves to the next key and retries,
// trying each key at most once per call.
type RotatingClient struct {
	factory Factory
	timeout time.Duration

	mu      sync.Mutex
	keys    []*securemem.String
	index   int
	backend Backend
}

// NewRotatingClient builds the backend for the first key. A key whose
// backend cannot be built leaves the client unavailable until the next
// SetKeys.
func NewRotatingClient(ctx context.Context, factory Factory, keys []string, timeout time.Duration) *RotatingClient {
	c := &RotatingClient{factory: factory, timeout: timeout}
	c.SetKeys(ctx, keys)
	return c
}

// SetKeys replaces the key pool and rebinds to the first key.
func (c *RotatingClient) SetKeys(ctx context.Context, keys []string) {
	pool := securemem.NewStrings(keys)

	var backend Backend
	if len(pool) > 0 {
		var err error
		backend, err = c.build(ctx, pool[0])
		if err != nil {
			log.Error("failed to initialize AI backend with key index 0: %v", err)
			backend = nil
		}
	}

	c.mu.Lock()
	old := c.keys
	c.keys = pool
	c.index = 0
	c.backend = backend
	c.mu.Unlock()

	securemem.DestroyAll(old)
	log.Info("AI key pool set to %d keys", len(pool))
}

// Available reports whether a call would reach a backend.
func (c *RotatingClient) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys) > 0 && c.backend != nil
}

// CurrentIndex returns the index of the active key.
func (c *RotatingClient) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Generate runs the conversation against the active key, rotating on quota
// exhaustion. It returns ErrUnavailable without calling anything when the
// pool is empty, ErrOverloaded once every key was tried, and a
// *RequestError for any other failure.
func (c *RotatingClient) Generate(ctx context.Context, turns []Turn) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		size, backend := len(c.keys), c.backend
		c.mu.Unlock()

		if size == 0 || backend == nil {
			metrics.AIRequests.WithLabelValues("unavailable").Inc()
			return "", ErrUnavailable
		}
		if attempt >= size {
			log.Error("all %d API keys exhausted", size)
			metrics.AIRequests.WithLabelValues("overloaded").Inc()
			return "", ErrOverloaded
		}

		text, err := backend.Generate(ctx, turns)
		if err == nil {
			metrics.AIRequests.WithLabelValues("ok").Inc()
			return text, nil
		}
		if !IsQuotaExhausted(err) {
			log.Error("generation error: %v", err)
			metrics.AIRequests.WithLabelValues("error").Inc()
			return "", &RequestError{Err: err}
		}

		c.rotate(ctx, backend)
	}
}

// rotate advances to the next key unless another caller already rotated
// away from failed. If the new backend cannot be built the previous one
// stays bound.
func (c *RotatingClient) rotate(ctx context.Context, failed Backend) {
	c.mu.Lock()
	if c.backend != failed || len(c.keys) == 0 {
		c.mu.Unlock()
		return
	}
	c.index = (c.index + 1) % len(c.keys)
	index, key := c.index, c.keys[c.index]
	c.mu.Unlock()

	metrics.KeyRotations.Inc()
	log.Warn("quota exhausted, rotating to key index %d", index)

	backend, err := c.build(ctx, key)
	if err != nil {
		log.Error("failed to initialize AI backend with key index %d: %v", index, err)
		return
	}

	c.mu.Lock()
	if c.index == index && c.backend == failed {
		c.backend = backend
	}
	c.mu.Unlock()
}

func (c *RotatingClient) build(ctx context.Context, key *securemem.String) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	key.WithValue(func(plain string) {
		backend, err = c.factory(ctx, plain)
	})
	if err != nil {
		return nil, fmt.Errorf("build backend: %w", err)
	}
	return backend, nil
}

// Close wipes the key pool.
func (c *RotatingClient) Close() {
	c.mu.Lock()
	keys := c.keys
	c.keys = nil
	c.backend = nil
	c.mu.Unlock()

	securemem.DestroyAll(keys)
}
