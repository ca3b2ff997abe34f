package application

import (
	"sync"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// TrackerClientProvider enables runtime hot-swap of the tracker client.
// It holds a mutex-protected reference to the current authenticated
// driven.TrackerClient and its username, so a re-login takes effect on the
// next tick without restarting the coordinator.
type TrackerClientProvider struct {
	mu       sync.RWMutex
	client   driven.TrackerClient
	username string
}

// NewTrackerClientProvider creates a provider with the given initial client
// and username. client may be nil until the user authenticates.
func NewTrackerClientProvider(client driven.TrackerClient, username string) *TrackerClientProvider {
	return &TrackerClientProvider{
		client:   client,
		username: username,
	}
}

// Get returns the current tracker client, or nil when nobody is logged in.
func (p *TrackerClientProvider) Get() driven.TrackerClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Username returns the username the current client is authenticated as.
func (p *TrackerClientProvider) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.username
}

// Replace swaps in a freshly authenticated client.
func (p *TrackerClientProvider) Replace(client driven.TrackerClient, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.username = username
}

// Clear drops the current client; reports pause until the next login.
func (p *TrackerClientProvider) Clear() {
	p.Replace(nil, "")
}

// HasClient returns true if a non-nil client is currently held.
func (p *TrackerClientProvider) HasClient() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}
