package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/R3E-Network/crud_service/internal/app/domain/user"
	"github.com/R3E-Network/crud_service/internal/app/services"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Service manages user records.
type Service struct {
	store storage.UserStore
	run   *services.Runner
	log   *logger.Logger
}

// New constructs a user service.
func New(store storage.UserStore, opts services.Options) *Service {
	run := services.NewRunner(opts, "users")
	return &Service{store: store, run: run, log: run.Log()}
}

// Create validates and stores a user. Usernames are unique.
func (s *Service) Create(ctx context.Context, in user.Input) (user.User, bool, error) {
	if err := services.Validate(in.Validate); err != nil {
		return user.User{}, false, err
	}

	u := in.User()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	var (
		stored  user.User
		created bool
	)
	err := s.run.Do(ctx, "create user", func(ctx context.Context) error {
		var err error
		stored, created, err = s.store.CreateUser(ctx, u)
		return err
	})
	if err != nil {
		return user.User{}, false, translate(u.ID, u.Username, err)
	}
	if !created && !stored.SameContent(u) {
		return user.User{}, false, svcerrors.Conflict(fmt.Sprintf("user %q already exists with different content", u.ID), nil)
	}
	if created {
		s.log.WithContext(ctx).WithField("user_id", stored.ID).Info("user created")
	}
	return stored, created, nil
}

// Get returns a user or a not_found error.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	var (
		u     user.User
		found bool
	)
	err := s.run.Do(ctx, "get user", func(ctx context.Context) error {
		var err error
		u, found, err = s.store.GetUser(ctx, id)
		return err
	})
	if err != nil {
		return user.User{}, services.Translate("user", id, err)
	}
	if !found {
		return user.User{}, svcerrors.NotFound("user", id)
	}
	return u, nil
}

// List returns one page of users ordered by creation.
func (s *Service) List(ctx context.Context, page storage.Page) ([]user.User, error) {
	var items []user.User
	err := s.run.Do(ctx, "list users", func(ctx context.Context) error {
		var err error
		items, err = s.store.ListUsers(ctx, page)
		return err
	})
	if err != nil {
		return nil, services.Translate("user", "", err)
	}
	return items, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, patch user.Patch) (user.User, error) {
	if err := services.Validate(patch.Validate); err != nil {
		return user.User{}, err
	}

	var updated user.User
	err := s.run.Do(ctx, "update user", func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateUser(ctx, id, patch)
		return err
	})
	if err != nil {
		username := ""
		if patch.Username != nil {
			username = *patch.Username
		}
		return user.User{}, translate(id, username, err)
	}
	s.log.WithContext(ctx).WithField("user_id", id).Info("user updated")
	return updated, nil
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.run.Do(ctx, "delete user", func(ctx context.Context) error {
		return s.store.DeleteUser(ctx, id)
	})
	if err != nil {
		return services.Translate("user", id, err)
	}
	s.log.WithContext(ctx).WithField("user_id", id).Info("user deleted")
	return nil
}

func translate(id, username string, err error) error {
	if database.ConstraintOf(err) == user.UsernameConstraint {
		return svcerrors.Conflict(fmt.Sprintf("username %q is already taken", username), err)
	}
	return services.Translate("user", id, err)
}
