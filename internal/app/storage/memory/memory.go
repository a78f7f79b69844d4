package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/crud_service/internal/app/domain/category"
	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/domain/user"
	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and enforces the same constraints as the PostgreSQL
// schema, reporting them with the same constraint names.
type Store struct {
	mu         sync.RWMutex
	latency    time.Duration
	widgets    map[string]widget.Widget
	users      map[string]user.User
	usernames  map[string]string
	categories map[string]category.Category
	catNames   map[string]string
	products   map[string]product.Product
}

var _ storage.WidgetStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.CategoryStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithLatency delays every operation by d, honouring the caller's context.
func WithLatency(d time.Duration) Option {
	return func(s *Store) { s.latency = d }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		widgets:    make(map[string]widget.Widget),
		users:      make(map[string]user.User),
		usernames:  make(map[string]string),
		categories: make(map[string]category.Category),
		catNames:   make(map[string]string),
		products:   make(map[string]product.Product),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op kept for parity with the PostgreSQL store.
func (s *Store) Close() error { return nil }

func (s *Store) wait(ctx context.Context, op string) error {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return database.Classify(ctx, op, err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func paginate[T any](items []T, page storage.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return make([]T, 0)
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return append(make([]T, 0, end-page.Offset), items[page.Offset:end]...)
}

func byCreation(aAt, bAt time.Time, aID, bID string) bool {
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return aID < bID
}

// WidgetStore implementation --------------------------------------------------

func (s *Store) CreateWidget(ctx context.Context, w widget.Widget) (widget.Widget, bool, error) {
	if err := s.wait(ctx, "insert widget"); err != nil {
		return widget.Widget{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w.ID = newID(w.ID)
	if existing, ok := s.widgets[w.ID]; ok {
		return existing, false, nil
	}
	w.CreatedAt = now()
	w.UpdatedAt = w.CreatedAt
	s.widgets[w.ID] = w
	return w, true, nil
}

func (s *Store) GetWidget(ctx context.Context, id string) (widget.Widget, bool, error) {
	if err := s.wait(ctx, "select widget"); err != nil {
		return widget.Widget{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.widgets[id]
	return w, ok, nil
}

func (s *Store) ListWidgets(ctx context.Context, page storage.Page) ([]widget.Widget, error) {
	if err := s.wait(ctx, "list widgets"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]widget.Widget, 0, len(s.widgets))
	for _, w := range s.widgets {
		items = append(items, w)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return byCreation(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return paginate(items, page), nil
}

func (s *Store) CountWidgets(ctx context.Context) (int64, error) {
	if err := s.wait(ctx, "count widgets"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.widgets)), nil
}

func (s *Store) UpdateWidget(ctx context.Context, id string, patch widget.Patch) (widget.Widget, error) {
	if err := s.wait(ctx, "update widget"); err != nil {
		return widget.Widget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.widgets[id]
	if !ok {
		return widget.Widget{}, storage.ErrNotFound
	}
	patch.Apply(&w)
	w.UpdatedAt = now()
	s.widgets[id] = w
	return w, nil
}

func (s *Store) DeleteWidget(ctx context.Context, id string) error {
	if err := s.wait(ctx, "delete widget"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.widgets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.widgets, id)
	return nil
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, bool, error) {
	if err := s.wait(ctx, "insert user"); err != nil {
		return user.User{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = newID(u.ID)
	if existing, ok := s.users[u.ID]; ok {
		return existing, false, nil
	}
	if _, taken := s.usernames[u.Username]; taken {
		return user.User{}, false, database.ConstraintViolation("insert user", user.UsernameConstraint)
	}
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	s.usernames[u.Username] = u.ID
	return u, true, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, bool, error) {
	if err := s.wait(ctx, "select user"); err != nil {
		return user.User{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	return u, ok, nil
}

func (s *Store) ListUsers(ctx context.Context, page storage.Page) ([]user.User, error) {
	if err := s.wait(ctx, "list users"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		items = append(items, u)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return byCreation(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return paginate(items, page), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch user.Patch) (user.User, error) {
	if err := s.wait(ctx, "update user"); err != nil {
		return user.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	previous := u.Username
	patch.Apply(&u)
	if owner, taken := s.usernames[u.Username]; taken && owner != id {
		return user.User{}, database.ConstraintViolation("update user", user.UsernameConstraint)
	}
	u.UpdatedAt = now()
	delete(s.usernames, previous)
	s.usernames[u.Username] = id
	s.users[id] = u
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.wait(ctx, "delete user"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.usernames, u.Username)
	delete(s.users, id)
	return nil
}

// CategoryStore implementation ------------------------------------------------

func (s *Store) CreateCategory(ctx context.Context, c category.Category) (category.Category, bool, error) {
	if err := s.wait(ctx, "insert category"); err != nil {
		return category.Category{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID(c.ID)
	if existing, ok := s.categories[c.ID]; ok {
		return existing, false, nil
	}
	if _, taken := s.catNames[c.Name]; taken {
		return category.Category{}, false, database.ConstraintViolation("insert category", category.NameConstraint)
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	s.categories[c.ID] = c
	s.catNames[c.Name] = c.ID
	return c, true, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (category.Category, bool, error) {
	if err := s.wait(ctx, "select category"); err != nil {
		return category.Category{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	return c, ok, nil
}

func (s *Store) ListCategories(ctx context.Context, page storage.Page) ([]category.Category, error) {
	if err := s.wait(ctx, "list categories"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]category.Category, 0, len(s.categories))
	for _, c := range s.categories {
		items = append(items, c)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return byCreation(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return paginate(items, page), nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, patch category.Patch) (category.Category, error) {
	if err := s.wait(ctx, "update category"); err != nil {
		return category.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return category.Category{}, storage.ErrNotFound
	}
	previous := c.Name
	patch.Apply(&c)
	if owner, taken := s.catNames[c.Name]; taken && owner != id {
		return category.Category{}, database.ConstraintViolation("update category", category.NameConstraint)
	}
	c.UpdatedAt = now()
	delete(s.catNames, previous)
	s.catNames[c.Name] = id
	s.categories[id] = c
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if err := s.wait(ctx, "delete category"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return storage.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return database.ConstraintViolation("delete category", product.CategoryConstraint)
		}
	}
	delete(s.catNames, c.Name)
	delete(s.categories, id)
	return nil
}

// ProductStore implementation -------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p product.Product) (product.Product, bool, error) {
	if err := s.wait(ctx, "insert product"); err != nil {
		return product.Product{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = newID(p.ID)
	if existing, ok := s.products[p.ID]; ok {
		return existing, false, nil
	}
	if _, ok := s.categories[p.CategoryID]; !ok {
		return product.Product{}, false, database.ConstraintViolation("insert product", product.CategoryConstraint)
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p, true, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, bool, error) {
	if err := s.wait(ctx, "select product"); err != nil {
		return product.Product{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	return p, ok, nil
}

func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter, page storage.Page) ([]product.Product, error) {
	if err := s.wait(ctx, "list products"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		items = append(items, p)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return byCreation(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return paginate(items, page), nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch product.Patch) (product.Product, error) {
	if err := s.wait(ctx, "update product"); err != nil {
		return product.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	patch.Apply(&p)
	if _, ok := s.categories[p.CategoryID]; !ok {
		return product.Product{}, database.ConstraintViolation("update product", product.CategoryConstraint)
	}
	p.UpdatedAt = now()
	s.products[id] = p
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if err := s.wait(ctx, "delete product"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.products, id)
	return nil
}
