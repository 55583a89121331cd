// Package vault keeps each browser's upstream credentials between page loads,
// plus short-lived claims used to deduplicate form submissions.
package vault

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

// ErrNotFound is returned when a workspace has no stored credentials.
var ErrNotFound = errors.New("vault: credentials not found")

// Credentials are upstream authentication values keyed by name (cookie names
// for the REST backend, the session token for Kratos).
type Credentials map[string]string

// Vault stores credentials per console workspace.
type Vault interface {
	Load(ctx context.Context, workspace string) (Credentials, error)
	Save(ctx context.Context, workspace string, creds Credentials) error
	Delete(ctx context.Context, workspace string) error
	// Claim takes key for ttl. It reports false when the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	creds   Credentials
	expires time.Time
}

// sweepInterval bounds how often Memory scans for expired entries.
const sweepInterval = time.Minute

// Memory is an in-process Vault for single-replica consoles. Expired
// credentials and claims are swept on writes.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	creds     map[string]memoryEntry
	claims    map[string]time.Time
	nextSweep time.Time
}

// NewMemory returns a Memory vault whose credentials expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:    ttl,
		now:    time.Now,
		creds:  make(map[string]memoryEntry),
		claims: make(map[string]time.Time),
	}
}

func (m *Memory) Load(_ context.Context, workspace string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.creds[workspace]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.creds, workspace)
		return nil, ErrNotFound
	}
	return maps.Clone(entry.creds), nil
}

func (m *Memory) Save(_ context.Context, workspace string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(creds) == 0 {
		delete(m.creds, workspace)
		return nil
	}
	m.pruneLocked(m.now())
	entry := memoryEntry{creds: maps.Clone(creds)}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.creds[workspace] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, workspace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, workspace)
	return nil
}

func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	if expires, ok := m.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	return true, nil
}

// pruneLocked drops expired claims and credentials at most once per
// sweepInterval. m.mu must be held.
func (m *Memory) pruneLocked(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	m.nextSweep = now.Add(sweepInterval)
	for key, expires := range m.claims {
		if !now.Before(expires) {
			delete(m.claims, key)
		}
	}
	for workspace, entry := range m.creds {
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			delete(m.creds, workspace)
		}
	}
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}
