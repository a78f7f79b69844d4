package widgets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
	"github.com/R3E-Network/crud_service/internal/app/services"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Cache is an optional read-through cache keyed by widget id. Failures are
// logged and otherwise ignored.
type Cache interface {
	Get(ctx context.Context, id string) (widget.Widget, bool, error)
	// Set stores a row the caller just committed, replacing any entry.
	Set(ctx context.Context, id string, w widget.Widget) error
	// Fill stores a row read from storage only if the key holds nothing,
	// so a read that raced a write cannot replace the writer's entry.
	Fill(ctx context.Context, id string, w widget.Widget) error
	// Invalidate leaves a tombstone that reads as a miss and blocks Fill
	// until it expires or Set replaces it.
	Invalidate(ctx context.Context, id string) error
}

// Service manages widget records.
type Service struct {
	store storage.WidgetStore
	cache Cache
	run   *services.Runner
	log   *logger.Logger
}

// New constructs a widget service.
func New(store storage.WidgetStore, opts services.Options) *Service {
	run := services.NewRunner(opts, "widgets")
	return &Service{store: store, run: run, log: run.Log()}
}

// AttachCache enables read-through caching.
func (s *Service) AttachCache(cache Cache) {
	s.cache = cache
}

// Create validates and stores a widget. created is false when the id already
// existed with identical content; differing content is a conflict.
func (s *Service) Create(ctx context.Context, in widget.Input) (widget.Widget, bool, error) {
	if err := services.Validate(in.Validate); err != nil {
		return widget.Widget{}, false, err
	}

	w := in.Widget()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	var (
		stored  widget.Widget
		created bool
	)
	err := s.run.Do(ctx, "create widget", func(ctx context.Context) error {
		var err error
		stored, created, err = s.store.CreateWidget(ctx, w)
		return err
	})
	if err != nil {
		return widget.Widget{}, false, services.Translate("widget", w.ID, err)
	}
	if !created && !stored.SameContent(w) {
		return widget.Widget{}, false, svcerrors.Conflict(fmt.Sprintf("widget %q already exists with different content", w.ID), nil)
	}

	if created {
		s.log.WithContext(ctx).WithField("widget_id", stored.ID).Info("widget created")
	}
	s.cacheSet(ctx, stored)
	return stored, created, nil
}

// Get returns a widget or a not_found error.
func (s *Service) Get(ctx context.Context, id string) (widget.Widget, error) {
	if s.cache != nil {
		w, found, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("widget cache read failed")
		} else if found {
			return w, nil
		}
	}

	var (
		w     widget.Widget
		found bool
	)
	err := s.run.Do(ctx, "get widget", func(ctx context.Context) error {
		var err error
		w, found, err = s.store.GetWidget(ctx, id)
		return err
	})
	if err != nil {
		return widget.Widget{}, services.Translate("widget", id, err)
	}
	if !found {
		return widget.Widget{}, svcerrors.NotFound("widget", id)
	}
	s.cacheFill(ctx, w)
	return w, nil
}

// List returns one page of widgets ordered by creation.
func (s *Service) List(ctx context.Context, page storage.Page) ([]widget.Widget, error) {
	var items []widget.Widget
	err := s.run.Do(ctx, "list widgets", func(ctx context.Context) error {
		var err error
		items, err = s.store.ListWidgets(ctx, page)
		return err
	})
	if err != nil {
		return nil, services.Translate("widget", "", err)
	}
	return items, nil
}

// Count returns the number of stored widgets.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.run.Do(ctx, "count widgets", func(ctx context.Context) error {
		var err error
		count, err = s.store.CountWidgets(ctx)
		return err
	})
	if err != nil {
		return 0, services.Translate("widget", "", err)
	}
	return count, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, patch widget.Patch) (widget.Widget, error) {
	if err := services.Validate(patch.Validate); err != nil {
		return widget.Widget{}, err
	}

	var updated widget.Widget
	err := s.run.Do(ctx, "update widget", func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateWidget(ctx, id, patch)
		return err
	})
	if err != nil {
		return widget.Widget{}, services.Translate("widget", id, err)
	}

	s.log.WithContext(ctx).WithField("widget_id", id).Info("widget updated")
	s.cacheSet(ctx, updated)
	return updated, nil
}

// Delete removes a widget.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.run.Do(ctx, "delete widget", func(ctx context.Context) error {
		return s.store.DeleteWidget(ctx, id)
	})
	// The cached copy goes either way; a failed delete is re-read from storage.
	s.cacheInvalidate(ctx, id)
	if err != nil {
		return services.Translate("widget", id, err)
	}
	s.log.WithContext(ctx).WithField("widget_id", id).Info("widget deleted")
	return nil
}

func (s *Service) cacheSet(ctx context.Context, w widget.Widget) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, w.ID, w); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("widget cache write failed")
	}
}

func (s *Service) cacheFill(ctx context.Context, w widget.Widget) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Fill(ctx, w.ID, w); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("widget cache fill failed")
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("widget cache invalidation failed")
	}
}
