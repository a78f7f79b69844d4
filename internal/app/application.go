package app

import (
	"context"
	"fmt"

	"github.com/R3E-Network/crud_service/internal/app/metrics"
	"github.com/R3E-Network/crud_service/internal/app/services"
	"github.com/R3E-Network/crud_service/internal/app/services/categories"
	"github.com/R3E-Network/crud_service/internal/app/services/products"
	"github.com/R3E-Network/crud_service/internal/app/services/users"
	"github.com/R3E-Network/crud_service/internal/app/services/widgets"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/app/storage/memory"
	"github.com/R3E-Network/crud_service/internal/app/system"
	"github.com/R3E-Network/crud_service/internal/retry"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Widgets    storage.WidgetStore
	Users      storage.UserStore
	Categories storage.CategoryStore
	Products   storage.ProductStore
}

// Options tunes the application beyond its stores.
type Options struct {
	Retry retry.Policy
	// WidgetCache enables read-through caching of widgets.
	WidgetCache widgets.Cache
	// Health reports whether the backing database is reachable. Nil means
	// always healthy.
	Health func(ctx context.Context) error
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	health  func(ctx context.Context) error

	Widgets    *widgets.Service
	Users      *users.Service
	Categories *categories.Service
	Products   *products.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.DefaultPolicy
	}

	var mem *memory.Store
	inMemory := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if stores.Widgets == nil {
		stores.Widgets = inMemory()
	}
	if stores.Users == nil {
		stores.Users = inMemory()
	}
	if stores.Categories == nil {
		stores.Categories = inMemory()
	}
	if stores.Products == nil {
		stores.Products = inMemory()
	}

	svcOpts := services.Options{
		Retry: opts.Retry,
		OnRetry: func(op string, attempt int, err error) {
			metrics.RecordDBRetry(op)
		},
		Log: log,
	}

	widgetService := widgets.New(stores.Widgets, svcOpts)
	if opts.WidgetCache != nil {
		widgetService.AttachCache(opts.WidgetCache)
	}

	manager := system.NewManager()
	for _, name := range []string{"widgets", "users", "categories", "products"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		health:     opts.Health,
		Widgets:    widgetService,
		Users:      users.New(stores.Users, svcOpts),
		Categories: categories.New(stores.Categories, svcOpts),
		Products:   products.New(stores.Products, svcOpts),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Ping reports whether the application can reach its storage.
func (a *Application) Ping(ctx context.Context) error {
	if a.health == nil {
		return nil
	}
	return a.health(ctx)
}
