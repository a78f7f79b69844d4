package categories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/R3E-Network/crud_service/internal/app/domain/category"
	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/services"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Service manages product categories.
type Service struct {
	store storage.CategoryStore
	run   *services.Runner
	log   *logger.Logger
}

// New constructs a category service.
func New(store storage.CategoryStore, opts services.Options) *Service {
	run := services.NewRunner(opts, "categories")
	return &Service{store: store, run: run, log: run.Log()}
}

// Create validates and stores a category. Names are unique.
func (s *Service) Create(ctx context.Context, in category.Input) (category.Category, bool, error) {
	if err := services.Validate(in.Validate); err != nil {
		return category.Category{}, false, err
	}

	c := in.Category()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var (
		stored  category.Category
		created bool
	)
	err := s.run.Do(ctx, "create category", func(ctx context.Context) error {
		var err error
		stored, created, err = s.store.CreateCategory(ctx, c)
		return err
	})
	if err != nil {
		return category.Category{}, false, translate(c.ID, c.Name, err)
	}
	if !created && !stored.SameContent(c) {
		return category.Category{}, false, svcerrors.Conflict(fmt.Sprintf("category %q already exists with different content", c.ID), nil)
	}
	if created {
		s.log.WithContext(ctx).WithField("category_id", stored.ID).Info("category created")
	}
	return stored, created, nil
}

// Get returns a category or a not_found error.
func (s *Service) Get(ctx context.Context, id string) (category.Category, error) {
	var (
		c     category.Category
		found bool
	)
	err := s.run.Do(ctx, "get category", func(ctx context.Context) error {
		var err error
		c, found, err = s.store.GetCategory(ctx, id)
		return err
	})
	if err != nil {
		return category.Category{}, services.Translate("category", id, err)
	}
	if !found {
		return category.Category{}, svcerrors.NotFound("category", id)
	}
	return c, nil
}

// List returns one page of categories ordered by creation.
func (s *Service) List(ctx context.Context, page storage.Page) ([]category.Category, error) {
	var items []category.Category
	err := s.run.Do(ctx, "list categories", func(ctx context.Context) error {
		var err error
		items, err = s.store.ListCategories(ctx, page)
		return err
	})
	if err != nil {
		return nil, services.Translate("category", "", err)
	}
	return items, nil
}

// Update renames a category.
func (s *Service) Update(ctx context.Context, id string, patch category.Patch) (category.Category, error) {
	if err := services.Validate(patch.Validate); err != nil {
		return category.Category{}, err
	}

	var updated category.Category
	err := s.run.Do(ctx, "update category", func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateCategory(ctx, id, patch)
		return err
	})
	if err != nil {
		return category.Category{}, translate(id, *patch.Name, err)
	}
	s.log.WithContext(ctx).WithField("category_id", id).Info("category updated")
	return updated, nil
}

// Delete removes a category that no product references.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.run.Do(ctx, "delete category", func(ctx context.Context) error {
		return s.store.DeleteCategory(ctx, id)
	})
	if database.ConstraintOf(err) == product.CategoryConstraint {
		return svcerrors.Conflict(fmt.Sprintf("category %q still has products", id), err)
	}
	if err != nil {
		return services.Translate("category", id, err)
	}
	s.log.WithContext(ctx).WithField("category_id", id).Info("category deleted")
	return nil
}

func translate(id, name string, err error) error {
	if database.ConstraintOf(err) == category.NameConstraint {
		return svcerrors.Conflict(fmt.Sprintf("category name %q is already taken", name), err)
	}
	return services.Translate("category", id, err)
}
