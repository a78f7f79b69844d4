package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/crud_service/internal/app"
	"github.com/R3E-Network/crud_service/internal/app/domain/category"
	"github.com/R3E-Network/crud_service/internal/app/domain/product"
	"github.com/R3E-Network/crud_service/internal/app/domain/user"
	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
	"github.com/R3E-Network/crud_service/internal/app/metrics"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/internal/httputil"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// listResponse wraps one page of a collection.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewHandler returns the router serving every API route. The router also
// satisfies middleware.RouteMatcher for route-labelled metrics.
func NewHandler(application *app.Application, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewDefault("httpapi")
	} else {
		log = log.Named("httpapi")
	}
	h := &handler{app: application, log: log}

	t := newRouteTable()
	t.handle(http.MethodGet, "/healthz", h.health)
	t.handle(http.MethodGet, "/metrics", metrics.Handler().ServeHTTP)

	t.handle(http.MethodPost, "/widgets", h.createWidget)
	t.handle(http.MethodGet, "/widgets", h.listWidgets)
	t.handle(http.MethodGet, "/widgets/count", h.countWidgets)
	t.handle(http.MethodGet, "/widgets/{id}", h.getWidget)
	t.handle(http.MethodPatch, "/widgets/{id}", h.updateWidget)
	t.handle(http.MethodDelete, "/widgets/{id}", h.deleteWidget)

	t.handle(http.MethodPost, "/users", h.createUser)
	t.handle(http.MethodGet, "/users", h.listUsers)
	t.handle(http.MethodGet, "/users/{id}", h.getUser)
	t.handle(http.MethodPatch, "/users/{id}", h.updateUser)
	t.handle(http.MethodDelete, "/users/{id}", h.deleteUser)

	t.handle(http.MethodPost, "/categories", h.createCategory)
	t.handle(http.MethodGet, "/categories", h.listCategories)
	t.handle(http.MethodGet, "/categories/{id}", h.getCategory)
	t.handle(http.MethodPatch, "/categories/{id}", h.updateCategory)
	t.handle(http.MethodDelete, "/categories/{id}", h.deleteCategory)

	t.handle(http.MethodPost, "/products", h.createProduct)
	t.handle(http.MethodGet, "/products", h.listProducts)
	t.handle(http.MethodGet, "/products/{id}", h.getProduct)
	t.handle(http.MethodPatch, "/products/{id}", h.updateProduct)
	t.handle(http.MethodDelete, "/products/{id}", h.deleteProduct)

	return t.router()
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ping(r.Context()); err != nil {
		h.fail(w, r, svcerrors.Unavailable(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes err and logs it when the server is at fault.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := svcerrors.From(err)
	if !svcErr.ClientError() {
		h.log.WithContext(r.Context()).
			WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	httputil.WriteError(w, svcErr)
}

// writeCreated answers a create: 201 with Location for a new record, 200 for
// an idempotent replay of an existing one.
func writeCreated(w http.ResponseWriter, location string, v any, created bool) {
	if !created {
		httputil.WriteJSON(w, http.StatusOK, v)
		return
	}
	w.Header().Set("Location", location)
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// list runs fetch for the requested page and writes the page envelope.
func list[T any](h *handler, w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, page storage.Page) ([]T, error)) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := fetch(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[T]{Items: items, Limit: page.Limit, Offset: page.Offset})
}

// Widgets

func (h *handler) createWidget(w http.ResponseWriter, r *http.Request) {
	var in widget.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	stored, created, err := h.app.Widgets.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCreated(w, "/widgets/"+stored.ID, stored, created)
}

func (h *handler) listWidgets(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.app.Widgets.List)
}

func (h *handler) countWidgets(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.Widgets.Count(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *handler) getWidget(w http.ResponseWriter, r *http.Request) {
	item, err := h.app.Widgets.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) updateWidget(w http.ResponseWriter, r *http.Request) {
	var patch widget.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.app.Widgets.Update(r.Context(), pathID(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) deleteWidget(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Widgets.Delete(r.Context(), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Users

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in user.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	stored, created, err := h.app.Users.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCreated(w, "/users/"+stored.ID, stored, created)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.app.Users.List)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	item, err := h.app.Users.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var patch user.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.app.Users.Update(r.Context(), pathID(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Users.Delete(r.Context(), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories

func (h *handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in category.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	stored, created, err := h.app.Categories.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCreated(w, "/categories/"+stored.ID, stored, created)
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.app.Categories.List)
}

func (h *handler) getCategory(w http.ResponseWriter, r *http.Request) {
	item, err := h.app.Categories.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var patch category.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.app.Categories.Update(r.Context(), pathID(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Categories.Delete(r.Context(), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	stored, created, err := h.app.Products.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCreated(w, "/products/"+stored.ID, stored, created)
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := storage.ProductFilter{CategoryID: strings.TrimSpace(r.URL.Query().Get("category_id"))}
	list(h, w, r, func(ctx context.Context, page storage.Page) ([]product.Product, error) {
		return h.app.Products.List(ctx, filter, page)
	})
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	item, err := h.app.Products.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch product.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	item, err := h.app.Products.Update(r.Context(), pathID(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Products.Delete(r.Context(), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
