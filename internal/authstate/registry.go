package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/metrics"
)

// ProviderClient is a per-browser Provider that can be detached from
// provider-wide events.
type ProviderClient interface {
	Provider
	Close()
}

// ClientFactory builds the provider client for one browser key.
type ClientFactory func(key string, meta auth.ClientMeta) ProviderClient

// Entry pairs one browser's provider client with its Store.
type Entry struct {
	Key    string
	Client ProviderClient
	Store  *Store

	init sync.Once
}

func (e *Entry) close() {
	e.Store.Close()
	e.Client.Close()
}

// Registry holds one Store per browser key. Idle entries expire and
// evicted entries are torn down.
type Registry struct {
	mu          sync.Mutex
	entries     *expirable.LRU[string, *Entry]
	newClient   ClientFactory
	resolver    ProfileResolver
	initTimeout time.Duration
	log         zerolog.Logger
}

func NewRegistry(size int, ttl time.Duration, newClient ClientFactory, resolver ProfileResolver, initTimeout time.Duration, log zerolog.Logger) *Registry {
	r := &Registry{
		newClient:   newClient,
		resolver:    resolver,
		initTimeout: initTimeout,
		log:         log.With().Str("component", "session_registry").Logger(),
	}
	r.entries = expirable.NewLRU[string, *Entry](size, r.onEvict, ttl)
	return r
}

func (r *Registry) onEvict(key string, entry *Entry) {
	entry.close()
	metrics.SessionStores.Dec()
	r.log.Debug().Str("browser", key).Msg("session store evicted")
}

// Get returns the initialized Store entry for key, creating it on first use.
// Each hit pushes the entry's expiry out by the registry TTL. Initialization
// queries the provider once; concurrent callers for a new key may observe
// Loading until it finishes.
func (r *Registry) Get(ctx context.Context, key string, meta auth.ClientMeta) *Entry {
	r.mu.Lock()
	entry, ok := r.entries.Get(key)
	if !ok {
		// An expired entry the sweeper has not reached yet still occupies
		// the slot; Add would overwrite it without the eviction callback.
		r.entries.Remove(key)

		client := r.newClient(key, meta)
		entry = &Entry{
			Key:    key,
			Client: client,
			Store:  NewStore(client, r.resolver, r.log.With().Str("browser", key).Logger()),
		}
		metrics.SessionStores.Inc()
	}
	r.entries.Add(key, entry)
	r.mu.Unlock()

	entry.init.Do(func() {
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.initTimeout)
		defer cancel()
		entry.Store.Initialize(initCtx)
	})
	return entry
}

// Peek returns the entry for key without creating or initializing one.
func (r *Registry) Peek(key string) (*Entry, bool) {
	return r.entries.Peek(key)
}

func (r *Registry) Len() int {
	return r.entries.Len()
}

// Close tears down every entry.
func (r *Registry) Close() {
	r.entries.Purge()
}
