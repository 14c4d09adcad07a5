package services

import (
	"context"
	"errors"

	"github.com/chachabrian/devforum-backend/internal/database"
	"github.com/chachabrian/devforum-backend/internal/models"
)

// ListUsers returns every member's public profile, newest first.
func (s *IdentityService) ListUsers(ctx context.Context) ([]models.Profile, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, internal("list users", err)
	}
	profiles := make([]models.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	return profiles, nil
}

func (s *IdentityService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := user.Profile()
	return &p, nil
}

// ProfileUpdate holds the editable fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name  *string  `json:"name" validate:"omitnil,min=2"`
	Phone *string  `json:"phone" validate:"omitnil,len=10"`
	About *string  `json:"about"`
	Tags  []string `json:"tags"`
}

func (s *IdentityService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.Profile, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.About != nil {
		user.About = *in.About
	}
	if in.Tags != nil {
		user.Tags = in.Tags
	}

	if err := s.store.Users().UpdateProfile(ctx, user); err != nil {
		return nil, internal("update profile", err)
	}
	p := user.Profile()
	return &p, nil
}

func (s *IdentityService) findUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, internal("load user", err)
	}
	return user, nil
}
