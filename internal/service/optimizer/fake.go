package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/duonganh203/benkyo/pkg/optimizerapi"
)

// FakeClient is an in-memory Client. It answers every call with Response or
// Err after an optional Delay, and records the requests it received. When
// Block is set, calls wait for it to be closed first.
type FakeClient struct {
	Response *optimizerapi.Response
	Err      error
	Delay    time.Duration
	Block    chan struct{}

	mu       sync.Mutex
	requests []optimizerapi.Request
}

func (f *FakeClient) Optimize(ctx context.Context, req optimizerapi.Request) (*optimizerapi.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.Block:
		}
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	if f.Err != nil {
		return nil, f.Err
	}
	resp := *f.Response
	return &resp, nil
}

func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *FakeClient) Requests() []optimizerapi.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]optimizerapi.Request(nil), f.requests...)
}
