package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/services"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Service manages products.
type Service struct {
	store storage.ProductStore
	run   *services.Runner
	log   *logger.Logger
}

// New constructs a product service.
func New(store storage.ProductStore, opts services.Options) *Service {
	run := services.NewRunner(opts, "products")
	return &Service{store: store, run: run, log: run.Log()}
}

// Create validates and stores a product. The category must exist.
func (s *Service) Create(ctx context.Context, in product.Input) (product.Product, bool, error) {
	if err := services.Validate(in.Validate); err != nil {
		return product.Product{}, false, err
	}

	p := in.Product()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var (
		stored  product.Product
		created bool
	)
	err := s.run.Do(ctx, "create product", func(ctx context.Context) error {
		var err error
		stored, created, err = s.store.CreateProduct(ctx, p)
		return err
	})
	if err != nil {
		return product.Product{}, false, translate(p.ID, err)
	}
	if !created && !stored.SameContent(p) {
		return product.Product{}, false, svcerrors.Conflict(fmt.Sprintf("product %q already exists with different content", p.ID), nil)
	}
	if created {
		s.log.WithContext(ctx).
			WithField("product_id", stored.ID).
			WithField("category_id", stored.CategoryID).
			Info("product created")
	}
	return stored, created, nil
}

// Get returns a product or a not_found error.
func (s *Service) Get(ctx context.Context, id string) (product.Product, error) {
	var (
		p     product.Product
		found bool
	)
	err := s.run.Do(ctx, "get product", func(ctx context.Context) error {
		var err error
		p, found, err = s.store.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return product.Product{}, services.Translate("product", id, err)
	}
	if !found {
		return product.Product{}, svcerrors.NotFound("product", id)
	}
	return p, nil
}

// List returns one page of products, optionally limited to one category.
func (s *Service) List(ctx context.Context, filter storage.ProductFilter, page storage.Page) ([]product.Product, error) {
	var items []product.Product
	err := s.run.Do(ctx, "list products", func(ctx context.Context) error {
		var err error
		items, err = s.store.ListProducts(ctx, filter, page)
		return err
	})
	if err != nil {
		return nil, services.Translate("product", "", err)
	}
	return items, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, patch product.Patch) (product.Product, error) {
	if err := services.Validate(patch.Validate); err != nil {
		return product.Product{}, err
	}

	var updated product.Product
	err := s.run.Do(ctx, "update product", func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateProduct(ctx, id, patch)
		return err
	})
	if err != nil {
		return product.Product{}, translate(id, err)
	}
	s.log.WithContext(ctx).WithField("product_id", id).Info("product updated")
	return updated, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.run.Do(ctx, "delete product", func(ctx context.Context) error {
		return s.store.DeleteProduct(ctx, id)
	})
	if err != nil {
		return services.Translate("product", id, err)
	}
	s.log.WithContext(ctx).WithField("product_id", id).Info("product deleted")
	return nil
}

func translate(id string, err error) error {
	if database.ConstraintOf(err) == product.CategoryConstraint {
		return svcerrors.Validation(map[string]string{
			"category_id": "does not reference an existing category",
		})
	}
	return services.Translate("product", id, err)
}
