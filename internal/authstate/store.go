package authstate

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/models"
)

var ErrClosed = errors.New("session store closed")

// Provider is the auth provider contract a Store drives.
type Provider interface {
	GetSession(ctx context.Context) (*models.AuthSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn auth.Listener) func()
}

// ProfileResolver never fails; it yields a fallback profile instead.
type ProfileResolver interface {
	Resolve(ctx context.Context, id string) models.User
}

// staleDropper is implemented by resolvers that share in-flight fetches.
// A profile known to have changed must not join a fetch that started
// before the change.
type staleDropper interface {
	Forget(id string)
}

// State is a snapshot of who is signed in. Profile is only set when
// Identity is. Loading is true until the first resolution settles.
type State struct {
	Identity *models.Identity
	Profile  *models.User
	Loading  bool
}

// HasRole reports whether a profile is present and its role is one of roles.
func (s State) HasRole(roles ...models.UserRole) bool {
	if s.Profile == nil {
		return false
	}
	for _, role := range roles {
		if s.Profile.Role == role {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	out := State{Loading: s.Loading}
	if s.Identity != nil {
		identity := *s.Identity
		out.Identity = &identity
	}
	if s.Profile != nil {
		profile := *s.Profile
		out.Profile = &profile
	}
	return out
}

// Store is the single source of truth for one browser's auth state. Only
// the Store mutates its State; everyone else reads snapshots.
type Store struct {
	provider Provider
	resolver ProfileResolver
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	settled       chan struct{}
	generation    uint64
	resolving     bool
	cancelResolve context.CancelFunc
	closed        bool
	nextSub       uint64
	subs          map[uint64]func(State)

	unsubscribeProvider func()
}

func NewStore(provider Provider, resolver ProfileResolver, log zerolog.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		provider: provider,
		resolver: resolver,
		log:      log.With().Str("component", "session_store").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Loading: true},
		settled:  make(chan struct{}),
		subs:     make(map[uint64]func(State)),
	}
	s.unsubscribeProvider = provider.OnAuthStateChange(s.handleAuthChange)
	return s
}

// Initialize asks the provider for an existing session. A failed query
// leaves the store signed out rather than failing.
func (s *Store) Initialize(ctx context.Context) {
	session, err := s.provider.GetSession(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.log.Error().Err(err).Msg("session query failed")
		s.setLoadingLocked(s.resolving)
		s.mu.Unlock()
		s.notify()
		return
	}

	if session == nil {
		s.clearLocked()
		s.mu.Unlock()
		s.notify()
		return
	}

	s.adoptIdentityLocked(session.User, false)
	s.mu.Unlock()
	s.notify()
}

// handleAuthChange is the provider callback. Repeated events for the same
// identity are absorbed; USER_UPDATED always re-resolves.
func (s *Store) handleAuthChange(event models.AuthEventType, session *models.AuthSession) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.log.Debug().Str("event", string(event)).Bool("session", session != nil).Msg("auth state changed")

	if session == nil {
		s.clearLocked()
		s.mu.Unlock()
		s.notify()
		return
	}

	s.adoptIdentityLocked(session.User, event == models.AuthEventUserUpdated)
	s.mu.Unlock()
	s.notify()
}

// adoptIdentityLocked records identity and starts a profile resolution
// unless one for the same identity is already done or under way.
func (s *Store) adoptIdentityLocked(identity models.Identity, force bool) {
	same := s.state.Identity != nil && s.state.Identity.ID == identity.ID
	s.state.Identity = &identity

	if same && !force && (s.resolving || s.state.Profile != nil) {
		if !s.resolving {
			s.setLoadingLocked(false)
		}
		return
	}

	if !same {
		s.state.Profile = nil
		s.setLoadingLocked(true)
	}
	s.startResolveLocked(identity.ID, force)
}

func (s *Store) startResolveLocked(id string, fresh bool) {
	if s.cancelResolve != nil {
		s.cancelResolve()
	}

	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelResolve = cancel
	s.resolving = true

	if dropper, ok := s.resolver.(staleDropper); ok && fresh {
		dropper.Forget(id)
	}

	go func() {
		defer cancel()
		user := s.resolver.Resolve(ctx, id)

		s.mu.Lock()
		// A newer auth change or teardown supersedes this result.
		if s.closed || gen != s.generation {
			s.mu.Unlock()
			return
		}
		s.state.Profile = &user
		s.resolving = false
		s.cancelResolve = nil
		s.setLoadingLocked(false)
		s.mu.Unlock()
		s.notify()
	}()
}

func (s *Store) clearLocked() {
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.generation++
	s.resolving = false
	s.state.Identity = nil
	s.state.Profile = nil
	s.setLoadingLocked(false)
}

func (s *Store) setLoadingLocked(loading bool) {
	if loading == s.state.Loading {
		return
	}
	s.state.Loading = loading
	if loading {
		s.settled = make(chan struct{})
	} else {
		close(s.settled)
	}
}

// SignIn delegates to the provider and returns its error unchanged.
// Loading stays true while the call runs and, on success, until the
// resulting profile resolution settles.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.setLoadingLocked(true)
	s.mu.Unlock()
	s.notify()

	_, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.log.Warn().Err(err).Msg("sign in failed")
	}

	s.mu.Lock()
	if !s.closed && !s.resolving {
		s.setLoadingLocked(false)
	}
	s.mu.Unlock()
	s.notify()

	return err
}

// SignOut clears local state only after the provider confirms. On error
// the state is left untouched.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		s.log.Error().Err(err).Msg("sign out failed, keeping session")
		return err
	}

	s.mu.Lock()
	if !s.closed {
		s.clearLocked()
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) HasRole(roles ...models.UserRole) bool {
	return s.State().HasRole(roles...)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every state change. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// WaitSettled blocks until Loading is false or ctx is done, then returns
// the current snapshot.
func (s *Store) WaitSettled(ctx context.Context) (State, error) {
	s.mu.Lock()
	if !s.state.Loading {
		snapshot := s.state.clone()
		s.mu.Unlock()
		return snapshot, nil
	}
	settled := s.settled
	s.mu.Unlock()

	select {
	case <-settled:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Close tears the store down. In-flight resolutions are cancelled and any
// later provider callback is dropped.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.cancel()
	s.setLoadingLocked(false)
	s.subs = map[uint64]func(State){}
	s.mu.Unlock()

	s.unsubscribeProvider()
}

func (s *Store) notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.clone()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
