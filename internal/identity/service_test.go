package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"edms/internal/identity"
	"edms/internal/identity/lockout"
	"edms/internal/identity/store/memory"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
)

const carolSecret = "correct horse battery"

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	service *identity.Service
	admin   rbac.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.service = identity.New(memory.New(), lockout.NewInMemory(clock), rbac.NewGuard(nil),
		identity.WithLockout(3, 10*time.Minute))
	s.admin = rbac.Actor{ID: "root", Roles: []rbac.Role{rbac.RoleAdmin}}

	_, err := s.service.RegisterUser(s.ctx, s.admin, identity.RegisterRequest{
		UserID: "carol", Roles: []string{"approver"}, Secret: carolSecret,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRegisterUser() {
	s.Run("admin only", func() {
		_, err := s.service.RegisterUser(s.ctx, rbac.Actor{ID: "carol", Roles: []rbac.Role{rbac.RoleApprover}},
			identity.RegisterRequest{UserID: "eve", Roles: []string{"admin"}, Secret: "long enough secret"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("short secret rejected", func() {
		_, err := s.service.RegisterUser(s.ctx, s.admin, identity.RegisterRequest{UserID: "dan", Roles: []string{"author"}, Secret: "short"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("unknown role rejected", func() {
		_, err := s.service.RegisterUser(s.ctx, s.admin, identity.RegisterRequest{UserID: "dan", Roles: []string{"owner"}, Secret: "long enough secret"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("duplicate conflicts", func() {
		_, err := s.service.RegisterUser(s.ctx, s.admin, identity.RegisterRequest{UserID: "carol", Roles: []string{"author"}, Secret: "long enough secret"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
	s.Run("secret is stored hashed", func() {
		u, err := s.service.Lookup(s.ctx, "carol")
		s.Require().NoError(err)
		s.NotEqual(carolSecret, u.SecretHash)
		s.NoError(identity.VerifySecret(carolSecret, u.SecretHash))
		s.Equal([]rbac.Role{rbac.RoleApprover}, u.Actor().Roles)
	})
}

func (s *ServiceSuite) TestReauthenticate() {
	s.NoError(s.service.Reauthenticate(s.ctx, "carol", carolSecret))

	err := s.service.Reauthenticate(s.ctx, "carol", "wrong")
	s.True(dErrors.HasCode(err, dErrors.CodeReauthFailed))
	s.True(dErrors.IsAuthorization(err))

	err = s.service.Reauthenticate(s.ctx, "mallory", carolSecret)
	s.True(dErrors.HasCode(err, dErrors.CodeReauthFailed), "unknown signer looks like a mismatch")
}

func (s *ServiceSuite) TestLockoutAfterRepeatedFailures() {
	for i := 0; i < 3; i++ {
		s.Error(s.service.Reauthenticate(s.ctx, "carol", "wrong"))
	}
	err := s.service.Reauthenticate(s.ctx, "carol", carolSecret)
	s.True(dErrors.HasCode(err, dErrors.CodeReauthFailed), "locked even with the right secret")

	s.now = s.now.Add(11 * time.Minute)
	s.NoError(s.service.Reauthenticate(s.ctx, "carol", carolSecret))
}

func (s *ServiceSuite) TestLockoutIsPerUserForLookalikeIDs() {
	for _, id := range []string{"qa:lead", "qa_lead"} {
		_, err := s.service.RegisterUser(s.ctx, s.admin, identity.RegisterRequest{
			UserID: id, Roles: []string{"approver"}, Secret: "long enough secret",
		})
		s.Require().NoError(err)
	}

	for i := 0; i < 3; i++ {
		s.Error(s.service.Reauthenticate(s.ctx, "qa:lead", "wrong"))
	}
	s.True(dErrors.HasCode(s.service.Reauthenticate(s.ctx, "qa:lead", "long enough secret"), dErrors.CodeReauthFailed))
	s.NoError(s.service.Reauthenticate(s.ctx, "qa_lead", "long enough secret"))
}

func (s *ServiceSuite) TestSuccessResetsFailures() {
	s.Error(s.service.Reauthenticate(s.ctx, "carol", "wrong"))
	s.Error(s.service.Reauthenticate(s.ctx, "carol", "wrong"))
	s.NoError(s.service.Reauthenticate(s.ctx, "carol", carolSecret))
	s.Error(s.service.Reauthenticate(s.ctx, "carol", "wrong"))
	s.Error(s.service.Reauthenticate(s.ctx, "carol", "wrong"))
	s.NoError(s.service.Reauthenticate(s.ctx, "carol", carolSecret))
}

func (s *ServiceSuite) TestSeedIsIdempotent() {
	first, err := s.service.Seed(s.ctx, identity.RegisterRequest{UserID: "root", Roles: []string{"admin"}, Secret: "bootstrap-secret-1"})
	s.Require().NoError(err)
	again, err := s.service.Seed(s.ctx, identity.RegisterRequest{UserID: "root", Roles: []string{"admin"}, Secret: "other-secret-2222"})
	s.Require().NoError(err)
	s.Equal(first.SecretHash, again.SecretHash)
}
