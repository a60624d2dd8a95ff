package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	"edms/pkg/platform/sentinel"
	"edms/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, u User) error
	FindByID(ctx context.Context, id string) (User, error)
}

// LockoutStore counts consecutive re-authentication failures per key within
// a sliding window.
type LockoutStore interface {
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Failures(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

type Authorizer interface {
	Check(actor rbac.Actor, op rbac.Operation) error
}

// Service registers users and re-authenticates signers.
type Service struct {
	users       UserStore
	lockout     LockoutStore
	guard       Authorizer
	logger      *slog.Logger
	maxFailures int
	window      time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLockout sets how many consecutive failures lock signing and for how long.
func WithLockout(maxFailures int, window time.Duration) Option {
	return func(s *Service) {
		if maxFailures > 0 {
			s.maxFailures = maxFailures
		}
		if window > 0 {
			s.window = window
		}
	}
}

func New(users UserStore, lockout LockoutStore, guard Authorizer, opts ...Option) *Service {
	s := &Service{
		users:       users,
		lockout:     lockout,
		guard:       guard,
		logger:      slog.Default(),
		maxFailures: 5,
		window:      15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterRequest struct {
	UserID string
	Roles  []string
	Secret string
}

// RegisterUser creates a user with a hashed signing credential. Admin only.
func (s *Service) RegisterUser(ctx context.Context, actor rbac.Actor, req RegisterRequest) (User, error) {
	if err := s.guard.Check(actor, rbac.OpRegisterUser); err != nil {
		return User{}, err
	}
	return s.register(ctx, req)
}

// Seed registers a user without an acting admin. Used to bootstrap the first
// administrator; an existing user is left untouched.
func (s *Service) Seed(ctx context.Context, req RegisterRequest) (User, error) {
	u, err := s.register(ctx, req)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		return s.Lookup(ctx, strings.TrimSpace(req.UserID))
	}
	return u, err
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (User, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return User{}, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if len(req.Roles) == 0 {
		return User{}, dErrors.New(dErrors.CodeValidation, "at least one role is required")
	}
	roles, err := rbac.ParseRoles(req.Roles)
	if err != nil {
		return User{}, err
	}
	hash, err := HashSecret(req.Secret)
	if err != nil {
		return User{}, err
	}

	u := User{ID: userID, Roles: roles, SecretHash: hash, CreatedAt: requestcontext.Now(ctx)}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return User{}, dErrors.Newf(dErrors.CodeConflict, "user %s already exists", userID)
		}
		return User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.logger.InfoContext(ctx, "user registered",
		"user_id", u.ID,
		"roles", rbac.Names(u.Roles),
	)
	return u, nil
}

// Lookup returns a user by id.
func (s *Service) Lookup(ctx context.Context, userID string) (User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return User{}, dErrors.Newf(dErrors.CodeNotFound, "user %s not found", userID)
		}
		return User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

// Reauthenticate verifies credential against the actor's stored secret,
// independent of any session. Every failure is reported as CodeReauthFailed,
// and after maxFailures consecutive failures the actor cannot sign until the
// window passes.
func (s *Service) Reauthenticate(ctx context.Context, actorID, credential string) error {
	key := lockoutKey(actorID)

	failures, err := s.lockout.Failures(ctx, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read re-authentication failures")
	}
	if failures >= s.maxFailures {
		s.logger.WarnContext(ctx, "re-authentication locked",
			"actor_id", actorID,
			"failures", failures,
		)
		return dErrors.New(dErrors.CodeReauthFailed, "re-authentication locked after repeated failures")
	}

	u, err := s.users.FindByID(ctx, actorID)
	switch {
	case err == nil:
		err = VerifySecret(credential, u.SecretHash)
	case errors.Is(err, sentinel.ErrNotFound):
		err = dErrors.New(dErrors.CodeReauthFailed, "unknown signer")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signer")
	}

	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeReauthFailed) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credential")
		}
		count, recErr := s.lockout.RecordFailure(ctx, key, s.window)
		if recErr != nil {
			return dErrors.Wrap(recErr, dErrors.CodeInternal, "failed to record re-authentication failure")
		}
		s.logger.WarnContext(ctx, "re-authentication failed",
			"actor_id", actorID,
			"failures", count,
		)
		return dErrors.New(dErrors.CodeReauthFailed, "re-authentication failed")
	}

	if err := s.lockout.Clear(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear re-authentication failures")
	}
	return nil
}

// lockoutKey path-escapes the id so distinct user ids never share a counter.
func lockoutKey(actorID string) string {
	return "reauth:" + url.PathEscape(actorID)
}
