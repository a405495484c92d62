package httpsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/auth"
	"github.com/vladislavdragonenkov/bakery/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bakery/internal/service/reviews"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}

func identity(r *http.Request) domain.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// --- auth ---

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	session, err := h.auth.Register(r.Context(), auth.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(session))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(session))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toAuthResponse(s auth.Session) authResponse {
	return authResponse{
		Token:     s.Token,
		Type:      "Bearer",
		ExpiresAt: s.ExpiresAt,
		ID:        s.User.ID,
		Name:      s.User.Name,
		Email:     s.User.Email,
		Role:      string(s.User.Role),
	}
}

// --- products ---

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPage(page))
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
	}
	switch strings.ToLower(q.Get("sortOrder")) {
	case "", "asc":
	case "desc":
		filter.Desc = true
	default:
		return filter, badRequest("sortOrder must be asc or desc")
	}

	var err error
	if filter.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.Size, err = intParam(q.Get("size"), "size"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name + " must be an integer")
	}
	return n, nil
}

func (h *Handler) featuredProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Featured(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductList(products))
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) productsByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductList(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.catalog.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- reviews ---

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.reviews.ListForProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]reviewResponse, 0, len(list))
	for _, review := range list {
		out = append(out, toReviewResponse(review))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	review, err := h.reviews.Create(r.Context(), identity(r), reviews.Input{
		ProductID: req.ProductID, Rating: req.Rating, Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(review))
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	review, err := h.reviews.Update(r.Context(), identity(r), chi.URLParam(r, "id"), reviews.Input{
		Rating: req.Rating, Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(review))
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.reviews.Delete(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- orders ---

// placeOrder оформляет заказ. С заголовком Idempotency-Key повтор того же тела
// возвращает сохранённый ответ, а заказ создаётся один раз.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, h.logger, badRequest("request body is too large"))
		return
	}
	caller := identity(r)

	process := func(ctx context.Context) idempotency.Response {
		return h.processOrder(ctx, r, caller, body)
	}

	key := strings.TrimSpace(r.Header.Get(idempotency.HeaderKey))
	if key == "" || h.guard == nil {
		writeResponse(w, process(r.Context()))
		return
	}

	resp, replayed, err := h.guard.Do(r.Context(), caller.UserID, key, r.Method, body, process)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		requestLogger(r, h.logger).WithField("idempotency_key", key).Info("replayed stored checkout response")
	}
	writeResponse(w, resp)
}

func (h *Handler) processOrder(ctx context.Context, r *http.Request, caller domain.Identity, body []byte) idempotency.Response {
	var req orderRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return h.errorResponse(r, badRequest("malformed JSON body: "+err.Error()))
	}

	order, err := h.orders.PlaceOrder(ctx, caller, req.cart())
	if err != nil {
		return h.errorResponse(r, err)
	}
	return jsonResponse(http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) errorResponse(r *http.Request, err error) idempotency.Response {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("request failed")
	}
	return jsonResponse(status, body)
}

func jsonResponse(status int, body any) idempotency.Response {
	payload, err := json.Marshal(body)
	if err != nil {
		return idempotency.Response{
			Status: http.StatusInternalServerError,
			Body:   []byte(`{"error":"INTERNAL","message":"internal server error"}`),
		}
	}
	return idempotency.Response{Status: status, Body: payload}
}

func writeResponse(w http.ResponseWriter, resp idempotency.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListForUser(r.Context(), identity(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- admin ---

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(list))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if strings.TrimSpace(status) == "" {
		writeError(w, r, h.logger, badRequest("status query parameter is required"))
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}
