// Package storage uploads submission assets and reports transfer progress.
//
// An upload is a Transfer: a finite stream of Progress events followed by a
// single terminal Result. The stream cannot be restarted; a failed upload is
// retried by starting a new Transfer.
package storage

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrNotFound is returned when a key or its download token does not match.
var ErrNotFound = errors.New("storage: object not found")

// Storage is the object storage backend used by the intake workflow.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) *Transfer
	Delete(ctx context.Context, key string) error
}

// Progress is one transfer progress event.
type Progress struct {
	BytesTransferred int64 `json:"bytesTransferred"`
	TotalBytes       int64 `json:"totalBytes"`
}

// Fraction is the completed share in [0, 1]. Unknown totals report 0.
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.BytesTransferred) / float64(p.TotalBytes)
	if f > 1 {
		return 1
	}
	return f
}

// Result is the terminal success value of a Transfer.
type Result struct {
	Key string
	// Locator is the durable retrieval URL for the stored object.
	Locator string
}

// ReportFunc records that n bytes have been transferred so far.
type ReportFunc func(n int64)

// Transfer is an in-flight upload.
type Transfer struct {
	events chan Progress
	done   chan struct{}
	cancel context.CancelFunc

	result Result
	err    error
}

// Start runs fn in its own goroutine and returns the Transfer observing it.
// fn calls report as bytes move; each call becomes one Progress event.
func Start(ctx context.Context, total int64, fn func(ctx context.Context, report ReportFunc) (Result, error)) *Transfer {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		events: make(chan Progress),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer cancel()
		report := func(n int64) {
			select {
			case t.events <- Progress{BytesTransferred: n, TotalBytes: total}:
			case <-ctx.Done():
			}
		}
		t.result, t.err = fn(ctx, report)
		close(t.events)
		close(t.done)
	}()
	return t
}

// Failed returns a Transfer that has already ended with err.
func Failed(err error) *Transfer {
	t := &Transfer{
		events: make(chan Progress),
		done:   make(chan struct{}),
		cancel: func() {},
		err:    err,
	}
	close(t.events)
	close(t.done)
	return t
}

// Events yields progress in order and is closed once the transfer ends.
func (t *Transfer) Events() <-chan Progress { return t.events }

// Wait blocks until the transfer ends, discarding unread events.
func (t *Transfer) Wait() (Result, error) {
	for range t.events {
	}
	<-t.done
	return t.result, t.err
}

// Cancel aborts the transfer. Backends stop at their next suspension point;
// an upload that already completed keeps its result.
func (t *Transfer) Cancel() { t.cancel() }

// countingReader reports the running byte count after every read.
type countingReader struct {
	r      io.Reader
	n      int64
	report ReportFunc

	mu sync.Mutex
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.mu.Lock()
		c.n += int64(n)
		total := c.n
		c.mu.Unlock()
		c.report(total)
	}
	return n, err
}
