package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/s3api"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool: closed")

// Factory creates a new client handle.
type Factory func() (s3api.S3API, error)

// ClientPool manages a pool of S3 client handles for reuse across uploads.
type ClientPool struct {
	clients chan s3api.S3API
	factory Factory
	maxSize int
	mu      sync.Mutex
	closed  bool
	stats   Stats
}

// Stats tracks pool usage statistics.
type Stats struct {
	Created   int64
	Reused    int64
	Destroyed int64
	Active    int64
	Idle      int64
}

// NewClientPool creates a new client pool holding at most size idle handles.
func NewClientPool(factory Factory, size int) *ClientPool {
	if size <= 0 {
		size = 4 // Default pool size
	}

	return &ClientPool{
		clients: make(chan s3api.S3API, size),
		factory: factory,
		maxSize: size,
	}
}

// Static returns a pool that always hands out the same handle.
// It is used when a caller injects its own client.
func Static(api s3api.S3API) *ClientPool {
	return NewClientPool(func() (s3api.S3API, error) { return api, nil }, 1)
}

// Acquire retrieves an idle handle or creates a new one.
func (p *ClientPool) Acquire(ctx context.Context) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	select {
	case client := <-p.clients:
		p.stats.Reused++
		p.stats.Active++
		p.stats.Idle--
		p.mu.Unlock()
		return &Lease{pool: p, api: client}, nil
	default:
	}
	p.mu.Unlock()

	client, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("pool: create client: %w", err)
	}

	p.mu.Lock()
	p.stats.Created++
	p.stats.Active++
	p.mu.Unlock()

	return &Lease{pool: p, api: client}, nil
}

// put returns a handle to the pool, discarding it if the pool is full or closed.
func (p *ClientPool) put(client s3api.S3API) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Active--
	if p.closed {
		p.stats.Destroyed++
		return
	}

	select {
	case p.clients <- client:
		p.stats.Idle++
	default:
		// Pool full, discard client
		p.stats.Destroyed++
	}
}

// Stats returns pool statistics.
func (p *ClientPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close drains the pool. Outstanding leases may still be released.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for {
		select {
		case <-p.clients:
			p.stats.Destroyed++
			p.stats.Idle--
		default:
			return
		}
	}
}

// Lease is a handle checked out of a ClientPool.
type Lease struct {
	pool *ClientPool
	api  s3api.S3API
	once sync.Once
}

// API returns the leased handle. It must not be used after Release.
func (l *Lease) API() s3api.S3API {
	return l.api
}

// Release returns the handle to its pool. Calling it more than once is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.put(l.api)
	})
}
