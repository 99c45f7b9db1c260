package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/models"
)

// Provider is the server side a Client talks to. *Service implements it.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string, meta ClientMeta) (models.AuthSession, error)
	Verify(ctx context.Context, accessToken string) (Principal, error)
	Refresh(ctx context.Context, refreshToken string) (models.AuthSession, error)
	SignOut(ctx context.Context, sessionID string) error
}

// Subscriber delivers provider-wide auth events.
type Subscriber interface {
	Subscribe(fn func(models.AuthEvent)) func()
}

// Listener is told about every auth-state change of one client. session is
// nil after a sign-out.
type Listener func(event models.AuthEventType, session *models.AuthSession)

// refreshMargin refreshes access tokens slightly before they expire.
const refreshMargin = 30 * time.Second

// Client is one browser's view of the provider. It persists the session in
// Storage, refreshes expired access tokens and relays provider-wide events
// about its own user to its listeners.
type Client struct {
	key      string
	provider Provider
	storage  Storage
	meta     ClientMeta
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *models.AuthSession
	nextID    uint64
	listeners map[uint64]Listener

	unsubscribe func()
	closeOnce   sync.Once
}

func NewClient(key string, provider Provider, storage Storage, events Subscriber, meta ClientMeta, log zerolog.Logger) *Client {
	c := &Client{
		key:       key,
		provider:  provider,
		storage:   storage,
		meta:      meta,
		log:       log.With().Str("component", "auth_client").Logger(),
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
	if events != nil {
		c.unsubscribe = events.Subscribe(c.relay)
	}
	return c
}

// GetSession returns the persisted session, refreshing it when the access
// token is expired. An unusable stored session yields nil, nil.
func (c *Client) GetSession(ctx context.Context) (*models.AuthSession, error) {
	stored, err := c.storage.Load(ctx, c.key)
	if err != nil {
		if errors.Is(err, errCorruptSession) {
			c.log.Warn().Err(err).Msg("discarding unreadable stored session")
			c.forget(ctx)
			return nil, nil
		}
		return nil, unavailable(err)
	}
	if stored == nil {
		c.setCurrent(nil)
		return nil, nil
	}

	if !stored.ExpiresAt.After(c.now().Add(refreshMargin)) {
		return c.refresh(ctx, *stored)
	}

	if _, err := c.provider.Verify(ctx, stored.AccessToken); err != nil {
		if CodeOf(err) == CodeSessionExpired {
			return c.refresh(ctx, *stored)
		}
		if IsSessionInvalid(err) {
			c.forget(ctx)
			return nil, nil
		}
		return nil, err
	}

	c.setCurrent(stored)
	return stored, nil
}

func (c *Client) refresh(ctx context.Context, stored models.AuthSession) (*models.AuthSession, error) {
	next, err := c.provider.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if IsSessionInvalid(err) {
			c.forget(ctx)
			return nil, nil
		}
		return nil, err
	}

	if err := c.storage.Save(ctx, c.key, next); err != nil {
		return nil, unavailable(err)
	}
	c.setCurrent(&next)
	c.emit(models.AuthEventTokenRefreshed, &next)
	return &next, nil
}

// SignInWithPassword returns provider errors unchanged.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	session, err := c.provider.SignInWithPassword(ctx, email, password, c.meta)
	if err != nil {
		return nil, err
	}

	if err := c.storage.Save(ctx, c.key, session); err != nil {
		return nil, unavailable(err)
	}
	c.setCurrent(&session)
	c.emit(models.AuthEventSignedIn, &session)
	return &session, nil
}

// SignOut ends the remote session first. Local storage is only cleared
// once the provider has confirmed.
func (c *Client) SignOut(ctx context.Context) error {
	stored, err := c.storage.Load(ctx, c.key)
	if err != nil && !errors.Is(err, errCorruptSession) {
		return unavailable(err)
	}

	if stored != nil {
		if err := c.provider.SignOut(ctx, stored.SessionID); err != nil {
			return err
		}
	}

	if err := c.storage.Delete(ctx, c.key); err != nil {
		return unavailable(err)
	}
	c.setCurrent(nil)
	c.emit(models.AuthEventSignedOut, nil)
	return nil
}

// OnAuthStateChange registers fn and returns its unsubscribe handle.
func (c *Client) OnAuthStateChange(fn Listener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close detaches the client from provider-wide events.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	})
}

func (c *Client) relay(ev models.AuthEvent) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil || current.User.ID != ev.UserID {
		return
	}

	switch ev.Type {
	case models.AuthEventUserUpdated:
		snapshot := *current
		c.emit(models.AuthEventUserUpdated, &snapshot)
	case models.AuthEventSignedOut:
		// Session-scoped sign-outs are handled by the client that issued them.
		if ev.SessionID != "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.forget(ctx)
		c.emit(models.AuthEventSignedOut, nil)
	}
}

func (c *Client) forget(ctx context.Context) {
	if err := c.storage.Delete(ctx, c.key); err != nil {
		c.log.Warn().Err(err).Msg("clear stored session failed")
	}
	c.setCurrent(nil)
}

func (c *Client) setCurrent(session *models.AuthSession) {
	c.mu.Lock()
	c.current = session
	c.mu.Unlock()
}

func (c *Client) emit(event models.AuthEventType, session *models.AuthSession) {
	c.mu.Lock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}
