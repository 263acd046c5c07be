package velo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AzozzALFiras/velo/internal/aggregator"
)

// Manager runs operations on several hosts concurrently, one Client per
// host. It provides bulk operations with configurable concurrency and
// timeouts.
type Manager struct {
	// Concurrency is the maximum number of hosts worked on at once
	Concurrency int
	// Timeout is the per-host operation timeout
	Timeout time.Duration

	clients map[string]*Client
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithConcurrency sets the maximum number of concurrent operations
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		m.Concurrency = n
	}
}

// WithTimeout sets the per-host operation timeout
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.Timeout = d
	}
}

// NewManager creates a Manager over clients keyed by host name
func NewManager(clients map[string]*Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		Concurrency: 10,
		Timeout:     time.Minute,
		clients:     clients,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.Concurrency < 1 {
		m.Concurrency = 1
	}

	return m
}

// Hosts returns the managed host names, sorted
func (m *Manager) Hosts() []string {
	out := make([]string, 0, len(m.clients))
	for h := range m.clients {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) execute(ctx context.Context, op func(context.Context, string, *Client) error) error {
	return aggregator.EachHost(ctx, m.Concurrency, m.Timeout, m.clients, op)
}

// Status checks ids, or every application, on every host. Hosts that fail
// are left out of the result and reported in the MultiError.
func (m *Manager) Status(ctx context.Context, ids ...string) (map[string]map[string]SoftwareStatus, error) {
	var mu sync.Mutex
	results := make(map[string]map[string]SoftwareStatus, len(m.clients))
	err := m.execute(ctx, func(ctx context.Context, host string, c *Client) error {
		st, err := c.Status(ctx, ids...)
		if err != nil {
			return err
		}
		mu.Lock()
		results[host] = st
		mu.Unlock()
		return nil
	})
	return results, err
}

// Control runs verb on service on every host
func (m *Manager) Control(ctx context.Context, service string, verb Verb) (map[string]ControlResult, error) {
	var mu sync.Mutex
	results := make(map[string]ControlResult, len(m.clients))
	err := m.execute(ctx, func(ctx context.Context, host string, c *Client) error {
		res, err := c.Control(ctx, service, verb)
		mu.Lock()
		results[host] = res
		mu.Unlock()
		return err
	})
	return results, err
}

// Restart restarts service on every host
func (m *Manager) Restart(ctx context.Context, service string) (map[string]ControlResult, error) {
	return m.Control(ctx, service, Restart)
}

// Reload reloads service on every host
func (m *Manager) Reload(ctx context.Context, service string) (map[string]ControlResult, error) {
	return m.Control(ctx, service, Reload)
}

// Close closes every client
func (m *Manager) Close() error {
	merr := &MultiError{}
	for _, c := range m.clients {
		merr.Add(c.Close())
	}
	return merr.Err()
}
