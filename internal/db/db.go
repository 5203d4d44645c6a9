package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/oxidb"
	"go.uber.org/zap"
)

// Source hands out oxidb clients. *Pool satisfies it; tests use oxidbtest.
type Source interface {
	Get() *oxidb.Client
}

type dialFunc func() (*oxidb.Client, error)

// Pool is a round-robin connection pool for OxiDB with auto-reconnect.
type Pool struct {
	dial     dialFunc
	clients  []*oxidb.Client
	mu       sync.RWMutex
	idx      uint64
	interval time.Duration
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPool creates a pool of size OxiDB connections and starts the keepalive loop.
func NewPool(host string, port, size int, log *zap.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	dial := func() (*oxidb.Client, error) {
		return oxidb.Connect(host, port, 5*time.Second)
	}
	return newPool(dial, size, 10*time.Second, log)
}

func newPool(dial dialFunc, size int, interval time.Duration, log *zap.Logger) (*Pool, error) {
	p := &Pool{
		dial:     dial,
		clients:  make([]*oxidb.Client, size),
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		c, err := dial()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: connect client %d: %w", i, err)
		}
		p.clients[i] = c
	}
	go p.keepalive()
	return p, nil
}

// Get returns the next client in round-robin order.
func (p *Pool) Get() *oxidb.Client {
	n := atomic.AddUint64(&p.idx, 1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[n%uint64(len(p.clients))]
}

// Size reports the number of pooled connections.
func (p *Pool) Size() int {
	return len(p.clients)
}

func (p *Pool) reconnect(i int) {
	c, err := p.dial()
	if err != nil {
		p.log.Warn("pool: reconnect failed", zap.Int("client", i), zap.Error(err))
		return
	}
	p.mu.Lock()
	old := p.clients[i]
	p.clients[i] = c
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (p *Pool) keepalive() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pingAll()
		}
	}
}

func (p *Pool) pingAll() {
	for i := range p.clients {
		p.mu.RLock()
		c := p.clients[i]
		p.mu.RUnlock()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := c.Ping(ctx)
		cancel()
		if err != nil {
			p.log.Warn("pool: ping failed, reconnecting", zap.Int("client", i), zap.Error(err))
			p.reconnect(i)
		}
	}
}

// Close stops the keepalive loop and closes all connections.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if c != nil {
			c.Close()
		}
	}
}
