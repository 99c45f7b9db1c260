package profile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"phaze17/dashboard/internal/metrics"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
)

const DefaultTimeout = 10 * time.Second

const (
	OutcomeFound     = "found"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Fetcher loads a profile row. It must return repository.ErrUserNotFound
// when no row exists.
type Fetcher interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Result is a resolved profile and how it was obtained.
type Result struct {
	User    models.User
	Outcome string
}

// Fallback reports whether User is the synthesized placeholder.
func (r Result) Fallback() bool {
	return r.Outcome != OutcomeFound
}

// Resolver maps an identity id to a profile with bounded latency. It never
// fails: every path that does not yield a real row yields the fallback.
type Resolver struct {
	fetcher Fetcher
	timeout time.Duration
	log     zerolog.Logger
	group   singleflight.Group
	now     func() time.Time
}

func NewResolver(fetcher Fetcher, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		fetcher: fetcher,
		timeout: timeout,
		log:     log.With().Str("component", "profile_resolver").Logger(),
		now:     time.Now,
	}
}

func (r *Resolver) Resolve(ctx context.Context, id string) models.User {
	return r.ResolveResult(ctx, id).User
}

// ResolveResult is Resolve with the outcome attached. Concurrent calls for
// the same id share one fetch.
func (r *Resolver) ResolveResult(ctx context.Context, id string) Result {
	if id == "" {
		r.log.Error().Msg("profile resolution without identity id")
		return r.fallback(id, OutcomeError)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	ch := r.group.DoChan(id, func() (interface{}, error) {
		// The shared fetch outlives any single caller's cancellation but
		// not the deadline.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.fetcher.GetByID(fetchCtx, id)
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			user := res.Val.(models.User)
			metrics.ProfileResolutions.WithLabelValues(OutcomeFound).Inc()
			r.log.Debug().Str("user_id", id).Str("role", string(user.Role)).Msg("profile resolved")
			return Result{User: user, Outcome: OutcomeFound}
		}
		return r.classify(id, res.Err)

	case <-timer.C:
		r.log.Warn().Str("user_id", id).Dur("timeout", r.timeout).Msg("profile fetch timed out, using fallback profile")
		return r.fallback(id, OutcomeTimeout)

	case <-ctx.Done():
		r.log.Debug().Str("user_id", id).Msg("profile resolution abandoned")
		return r.fallback(id, OutcomeCancelled)
	}
}

// Forget detaches id from any fetch already in flight, so the next
// resolution reads the row again. Callers use it when the profile is known
// to have changed.
func (r *Resolver) Forget(id string) {
	r.group.Forget(id)
}

func (r *Resolver) classify(id string, err error) Result {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		r.log.Info().Str("user_id", id).Msg("profile not found, using fallback profile")
		return r.fallback(id, OutcomeNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		r.log.Warn().Err(err).Str("user_id", id).Msg("profile fetch timed out, using fallback profile")
		return r.fallback(id, OutcomeTimeout)
	default:
		r.log.Error().Err(err).Str("user_id", id).Msg("profile fetch failed, using fallback profile")
		return r.fallback(id, OutcomeError)
	}
}

func (r *Resolver) fallback(id, outcome string) Result {
	metrics.ProfileResolutions.WithLabelValues(outcome).Inc()
	return Result{User: models.FallbackUser(id, r.now().UTC()), Outcome: outcome}
}
