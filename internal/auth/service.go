package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/ids"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/security"
)

type identityStore interface {
	Create(ctx context.Context, cred models.Credential) error
	GetByID(ctx context.Context, id string) (models.Credential, error)
	FindByEmail(ctx context.Context, email string) (models.Credential, error)
	Delete(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
}

type sessionStore interface {
	Create(ctx context.Context, session models.Session, keep int) (int64, error)
	GetByID(ctx context.Context, id string) (models.Session, error)
	FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error)
	Rotate(ctx context.Context, id string, refreshHash []byte, expiresAt time.Time) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// Publisher receives provider-wide auth events.
type Publisher interface {
	Publish(ctx context.Context, ev models.AuthEvent) error
}

type Options struct {
	AccessSecret string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	MaxSessions  int
	// Argon2 is the cost for new password hashes. Zero means
	// security.DefaultArgon2.
	Argon2 security.Argon2Params
}

// ClientMeta describes the caller of a sign-in for session bookkeeping.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Principal is a verified access token.
type Principal struct {
	Identity  models.Identity
	SessionID string
}

// Service is the provider side of authentication: identities, password
// sign-in and refresh sessions.
type Service struct {
	identities identityStore
	sessions   sessionStore
	events     Publisher
	opts       Options
	tokens     *security.TokenSigner
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(identities identityStore, sessions sessionStore, events Publisher, opts Options, log zerolog.Logger) *Service {
	if opts.Argon2 == (security.Argon2Params{}) {
		opts.Argon2 = security.DefaultArgon2
	}
	return &Service{
		identities: identities,
		sessions:   sessions,
		events:     events,
		opts:       opts,
		tokens:     security.NewTokenSigner(opts.AccessSecret, opts.AccessTTL),
		log:        log.With().Str("component", "auth").Logger(),
		now:        time.Now,
	}
}

func (s *Service) SignInWithPassword(ctx context.Context, email, password string, meta ClientMeta) (models.AuthSession, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	cred, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return models.AuthSession{}, ErrInvalidCredentials
		}
		return models.AuthSession{}, unavailable(err)
	}

	ok, err := security.VerifyPassword(password, cred.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", cred.ID).Msg("stored password hash unreadable")
		return models.AuthSession{}, ErrInvalidCredentials
	}
	if !ok {
		return models.AuthSession{}, ErrInvalidCredentials
	}

	if cred.EmailConfirmedAt == nil {
		return models.AuthSession{}, ErrEmailNotConfirmed
	}
	s.upgradeHash(ctx, cred, password)

	session, err := s.createSession(ctx, cred.Identity, meta)
	if err != nil {
		return models.AuthSession{}, unavailable(err)
	}

	s.publish(ctx, models.AuthEventSignedIn, cred.ID, session.SessionID)
	return session, nil
}

func (s *Service) upgradeHash(ctx context.Context, cred models.Credential, password string) {
	if !security.NeedsRehash(cred.PasswordHash, s.opts.Argon2) {
		return
	}
	hash, err := security.HashPasswordWithParams(password, s.opts.Argon2)
	if err == nil {
		err = s.identities.UpdatePasswordHash(ctx, cred.ID, hash)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", cred.ID).Msg("password rehash failed")
	}
}

func (s *Service) createSession(ctx context.Context, identity models.Identity, meta ClientMeta) (models.AuthSession, error) {
	refreshToken, refreshHash, err := security.NewRefreshToken()
	if err != nil {
		return models.AuthSession{}, err
	}

	now := s.now()
	row := models.Session{
		ID:               ids.New(),
		UserID:           identity.ID,
		RefreshTokenHash: refreshHash,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        now.Add(s.opts.RefreshTTL),
	}

	accessToken, expiresAt, err := s.tokens.Issue(identity.ID, row.ID, identity.Email, now)
	if err != nil {
		return models.AuthSession{}, err
	}

	pruned, err := s.sessions.Create(ctx, row, s.opts.MaxSessions)
	if err != nil {
		return models.AuthSession{}, err
	}
	if pruned > 0 {
		s.log.Info().Str("user_id", identity.ID).Int64("pruned", pruned).Msg("session limit reached, oldest sessions dropped")
	}

	return models.AuthSession{
		SessionID:    row.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         identity,
	}, nil
}

// Verify checks an access token and that its refresh session is still live,
// so revoked sessions stop working before the token expires.
func (s *Service) Verify(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrSessionExpired
		}
		return Principal{}, ErrInvalidToken
	}

	if _, err := s.sessions.GetByID(ctx, claims.SessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Principal{}, ErrSessionNotFound
		}
		return Principal{}, unavailable(err)
	}

	cred, err := s.identities.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return Principal{}, ErrSessionNotFound
		}
		return Principal{}, unavailable(err)
	}

	return Principal{Identity: cred.Identity, SessionID: claims.SessionID}, nil
}

// Touch records activity on a session. Failures are logged only.
func (s *Service) Touch(ctx context.Context, sessionID string, meta ClientMeta) {
	if err := s.sessions.Touch(ctx, sessionID, meta.IPAddress, meta.UserAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("touch session failed")
	}
}

// Refresh rotates the refresh token and issues a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.AuthSession, error) {
	if refreshToken == "" {
		return models.AuthSession{}, ErrRefreshInvalid
	}

	row, err := s.sessions.FindByRefreshHash(ctx, security.RefreshDigest(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.AuthSession{}, ErrRefreshInvalid
		}
		return models.AuthSession{}, unavailable(err)
	}

	now := s.now()
	if row.ExpiresAt.Before(now) {
		if err := s.sessions.DeleteByID(ctx, row.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("session_id", row.ID).Msg("delete expired session failed")
		}
		return models.AuthSession{}, ErrSessionExpired
	}

	cred, err := s.identities.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return models.AuthSession{}, ErrRefreshInvalid
		}
		return models.AuthSession{}, unavailable(err)
	}

	newToken, newHash, err := security.NewRefreshToken()
	if err != nil {
		return models.AuthSession{}, unavailable(err)
	}
	if err := s.sessions.Rotate(ctx, row.ID, newHash, now.Add(s.opts.RefreshTTL)); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.AuthSession{}, ErrRefreshInvalid
		}
		return models.AuthSession{}, unavailable(err)
	}

	accessToken, expiresAt, err := s.tokens.Issue(cred.ID, row.ID, cred.Email, now)
	if err != nil {
		return models.AuthSession{}, unavailable(err)
	}

	s.publish(ctx, models.AuthEventTokenRefreshed, cred.ID, row.ID)

	return models.AuthSession{
		SessionID:    row.ID,
		AccessToken:  accessToken,
		RefreshToken: newToken,
		ExpiresAt:    expiresAt,
		User:         cred.Identity,
	}, nil
}

// SignOut ends one refresh session. An already-gone session counts as
// signed out.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	row, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return unavailable(err)
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return unavailable(err)
	}

	s.publish(ctx, models.AuthEventSignedOut, row.UserID, sessionID)
	return nil
}

// Sessions lists a user's live refresh sessions, most recent first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

// RevokeSession ends one of the user's own sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	row, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return unavailable(err)
	}
	if row.UserID != userID {
		return ErrSessionNotFound
	}
	return s.SignOut(ctx, sessionID)
}

// SignUp registers a password identity. Confirmed identities can sign in
// straight away.
func (s *Service) SignUp(ctx context.Context, email, password string, confirmed bool) (models.Identity, error) {
	hash, err := security.HashPasswordWithParams(password, s.opts.Argon2)
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{
		ID:    ids.NewUUID(),
		Email: strings.TrimSpace(strings.ToLower(email)),
	}
	if confirmed {
		now := s.now().UTC()
		identity.EmailConfirmedAt = &now
	}

	if err := s.identities.Create(ctx, models.Credential{Identity: identity, PasswordHash: hash}); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

// RevokeUser ends every session of a user and tells live clients.
func (s *Service) RevokeUser(ctx context.Context, userID string) error {
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Int64("sessions", n).Msg("user sessions revoked")
	s.publish(ctx, models.AuthEventSignedOut, userID, "")
	return nil
}

// DeleteIdentity removes the identity together with its profile and
// sessions. Callers revoke first so live clients are told.
func (s *Service) DeleteIdentity(ctx context.Context, userID string) error {
	return s.identities.Delete(ctx, userID)
}

// NotifyUserUpdated tells live clients that a user's profile changed.
func (s *Service) NotifyUserUpdated(ctx context.Context, userID string) {
	s.publish(ctx, models.AuthEventUserUpdated, userID, "")
}

func (s *Service) publish(ctx context.Context, typ models.AuthEventType, userID, sessionID string) {
	if s.events == nil {
		return
	}
	ev := models.AuthEvent{Type: typ, UserID: userID, SessionID: sessionID}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(typ)).Str("user_id", userID).Msg("publish auth event failed")
	}
}
