package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
)

// Cache is the read-through store for profile rows.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type Service interface {
	EnsureUser(ctx context.Context, id auth.Identity) (*User, error)
	Profile(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, email string, upd ProfileUpdate) (*User, error)
	CompleteProfile(ctx context.Context, email string, upd ProfileUpdate) (*User, error)
}

type service struct {
	repo   Repository
	cache  Cache
	logger logrus.FieldLogger
}

func NewService(repo Repository, cache Cache, logger logrus.FieldLogger) Service {
	return &service{repo: repo, cache: cache, logger: logger}
}

func cacheKey(email string) string {
	return "profile:" + email
}

func (s *service) EnsureUser(ctx context.Context, id auth.Identity) (*User, error) {
	name := id.Name
	if name == "" {
		name = id.Email
	}
	u, err := s.repo.Create(ctx, id.Email, name)
	if err != nil {
		return nil, err
	}
	s.store(ctx, u)
	return u, nil
}

func (s *service) Profile(ctx context.Context, email string) (*User, error) {
	var cached User
	if ok, err := s.cache.GetJSON(ctx, cacheKey(email), &cached); err == nil && ok {
		return &cached, nil
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.store(ctx, u)
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, email string, upd ProfileUpdate) (*User, error) {
	return s.update(ctx, email, upd, false)
}

func (s *service) CompleteProfile(ctx context.Context, email string, upd ProfileUpdate) (*User, error) {
	return s.update(ctx, email, upd, true)
}

func (s *service) update(ctx context.Context, email string, upd ProfileUpdate, complete bool) (*User, error) {
	// Invalidate before and after the write so a concurrent read cannot pin the old row.
	upd = normalize(upd)
	if err := validate(upd); err != nil {
		return nil, err
	}
	s.invalidate(ctx, email)
	u, err := s.repo.UpdateProfile(ctx, email, upd, complete)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, email)
	return u, nil
}

func (s *service) store(ctx context.Context, u *User) {
	if err := s.cache.SetJSON(ctx, cacheKey(u.Email), u); err != nil {
		s.logger.WithError(err).Debug("profile cache write failed")
	}
}

func (s *service) invalidate(ctx context.Context, email string) {
	if err := s.cache.Delete(ctx, cacheKey(email)); err != nil {
		s.logger.WithError(err).Warn("profile cache invalidation failed")
	}
}

func normalize(upd ProfileUpdate) ProfileUpdate {
	for _, f := range []**string{
		&upd.Phone, &upd.Gender, &upd.Address, &upd.EmergencyContact, &upd.Allergies,
		&upd.CurrentMedications, &upd.MedicalConditions, &upd.HealthGoals,
	} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
	if upd.DateOfBirth != nil {
		v := strings.TrimSpace(*upd.DateOfBirth)
		upd.DateOfBirth = &v
		if v == "" {
			upd.DateOfBirth = nil
		}
	}
	return upd
}

func validate(upd ProfileUpdate) error {
	if upd.DateOfBirth != nil {
		if _, err := time.Parse(dateLayout, *upd.DateOfBirth); err != nil {
			return fmt.Errorf("%w: dateOfBirth must be YYYY-MM-DD", ErrInvalidProfile)
		}
	}
	return nil
}
