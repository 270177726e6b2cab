// Package rest отдаёт движок заказов по HTTP/JSON под /api/orders.
package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// maxBodyBytes ограничивает тело запроса.
const maxBodyBytes = 1 << 20

// Config: параметры REST-роутера.
type Config struct {
	RateRPS   float64
	RateBurst int
	Logger    *log.Entry
}

type handler struct {
	orders api.Orders
	logger *log.Entry
}

// NewRouter собирает chi-роутер с middleware и маршрутами заказов.
func NewRouter(orders api.Orders, cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	limiter, err := newClientLimiter(cfg.RateRPS, cfg.RateBurst)
	if err != nil {
		return nil, err
	}

	h := &handler{orders: orders, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(limiter.middleware)

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/stats", h.stats)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
			r.Get("/items", h.getItems)
			r.Get("/consistency", h.checkConsistency)
			r.Post("/reconcile", h.reconcile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("route not found", api.CodeNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed", "method_not_allowed"))
	})
	return r, nil
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var (
		list []domain.Order
		err  error
	)
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		list, err = h.orders.ListOrdersByStatus(r.Context(), domain.OrderStatus(status))
	} else {
		list, err = h.orders.ListOrders(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrders(list))
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	header, items := req.Header()
	order, err := h.orders.CreateOrder(r.Context(), header, items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+order.ID)
	writeJSON(w, http.StatusCreated, api.FromOrder(order))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orders.StatusSummary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSummary(summary))
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrder(order))
}

func (h *handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch, replacement := req.Patch()
	order, err := h.orders.UpdateOrder(r.Context(), chi.URLParam(r, "id"), patch, replacement)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrder(order))
}

func (h *handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := h.orders.GetOrderItems(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ItemList{OrderID: id, Items: api.FromLineItems(items)})
}

func (h *handler) checkConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.CheckConsistency(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromDriftReport(report))
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.ReconcileOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOrder(order))
}

// fail отвечает ошибкой движка с кодом из api.ErrorCode.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := api.NewErrorResponse(err)
	code := httpStatus(resp.Code)
	if code >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("order request failed")
	}
	writeJSON(w, code, resp)
}

func httpStatus(code string) int {
	switch code {
	case api.CodeValidation:
		return http.StatusBadRequest
	case api.CodeNotFound:
		return http.StatusNotFound
	case api.CodeAlreadyExists:
		return http.StatusConflict
	case api.CodeCatalogLookup:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		message := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			message = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorBody(message, api.CodeValidation))
		return false
	}
	return true
}

func errorBody(message, code string) api.ErrorResponse {
	return api.ErrorResponse{Error: message, Code: code}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
