package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/model"
	"github.com/resotel/tariff-conventions/internal/queue"
	"github.com/resotel/tariff-conventions/internal/repository"
	queue_publisher "github.com/resotel/tariff-conventions/internal/service"
)

// ConventionHandler groups the write path (upsert, status toggle,
// delete) and the administrative reads over conventions.  All write
// methods assume JWT authentication and role validation have already
// been performed by middleware.
type ConventionHandler struct {
	Orchestrator *engine.Orchestrator        // the only write path into the store
	Repo         *repository.ConventionRepo  // direct reads and administrative delete
}

// NewConventionHandler constructs a ConventionHandler with the provided
// orchestrator and repository.  Both must be non-nil.
func NewConventionHandler(orchestrator *engine.Orchestrator, repo *repository.ConventionRepo) *ConventionHandler {
	if orchestrator == nil || repo == nil {
		panic("nil dependency passed to NewConventionHandler")
	}
	return &ConventionHandler{Orchestrator: orchestrator, Repo: repo}
}

// upsertRequest is the JSON body of POST /v1/conventions.  An absent or
// zero id creates a new convention; a non-zero id replaces the existing
// record's mutable fields.  monthly_prices is keyed by lowercase
// English month names and is a full replacement on every call.
type upsertRequest struct {
	ID              uint64              `json:"id,omitempty"`
	ClientID        uint64              `json:"client_id"`
	CategoryID      uint64              `json:"category_id"`
	HotelID         *uint64             `json:"hotel_id,omitempty"`
	ValidityStart   string              `json:"validity_start"`
	ValidityEnd     *string             `json:"validity_end,omitempty"`
	DefaultPrice    decimal.Decimal     `json:"default_price"`
	MonthlyPrices   model.MonthlyPrices `json:"monthly_prices,omitempty"`
	DiscountPercent *decimal.Decimal    `json:"discount_percent,omitempty"`
	FlatMonthlyRate *decimal.Decimal    `json:"flat_monthly_rate,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	Active          *bool               `json:"active,omitempty"` // defaults to true
}

// conventionResponse is the JSON shape of a stored convention.
type conventionResponse struct {
	ID              uint64              `json:"id"`
	ClientID        uint64              `json:"client_id"`
	CategoryID      uint64              `json:"category_id"`
	HotelID         *uint64             `json:"hotel_id,omitempty"`
	ValidityStart   string              `json:"validity_start"`
	ValidityEnd     *string             `json:"validity_end,omitempty"`
	DefaultPrice    decimal.Decimal     `json:"default_price"`
	MonthlyPrices   model.MonthlyPrices `json:"monthly_prices,omitempty"`
	DiscountPercent *decimal.Decimal    `json:"discount_percent,omitempty"`
	FlatMonthlyRate *decimal.Decimal    `json:"flat_monthly_rate,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	Active          bool                `json:"active"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

func toConventionResponse(c model.Convention) conventionResponse {
	resp := conventionResponse{
		ID:              c.ID,
		ClientID:        c.ClientID,
		CategoryID:      c.CategoryID,
		HotelID:         c.HotelID,
		ValidityStart:   c.ValidityStart.Format(model.DateLayout),
		DefaultPrice:    c.DefaultPrice,
		MonthlyPrices:   c.MonthlyPrices,
		DiscountPercent: c.DiscountPercent,
		FlatMonthlyRate: c.FlatMonthlyRate,
		Notes:           c.Notes,
		Active:          c.Active,
		CreatedAt:       c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if c.ValidityEnd != nil {
		end := c.ValidityEnd.Format(model.DateLayout)
		resp.ValidityEnd = &end
	}
	return resp
}

// Upsert handles POST /v1/conventions.  It validates the body, runs
// the orchestrator (validate, overlap check and write as one atomic
// unit) and returns 201 Created for new records or 200 OK for updates.
// Validation failures return 400, a window conflict returns 409, a
// missing update target returns 404 and a scope-lock wait that times
// out returns 503.
func (h *ConventionHandler) Upsert(c echo.Context) error {
	var body upsertRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	start, err := time.Parse(model.DateLayout, body.ValidityStart)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid validity_start, expected YYYY-MM-DD"})
	}
	var end *time.Time
	if body.ValidityEnd != nil && *body.ValidityEnd != "" {
		t, err := time.Parse(model.DateLayout, *body.ValidityEnd)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid validity_end, expected YYYY-MM-DD"})
		}
		end = &t
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}

	in := engine.UpsertInput{
		ID:              body.ID,
		ClientID:        body.ClientID,
		CategoryID:      body.CategoryID,
		HotelID:         body.HotelID,
		ValidityStart:   start,
		ValidityEnd:     end,
		DefaultPrice:    body.DefaultPrice,
		MonthlyPrices:   body.MonthlyPrices,
		DiscountPercent: body.DiscountPercent,
		FlatMonthlyRate: body.FlatMonthlyRate,
		Notes:           body.Notes,
		Active:          active,
	}
	res, err := h.Orchestrator.Upsert(c.Request().Context(), in)
	if err != nil {
		return writeEngineError(c, err)
	}

	h.publishUpserted(c, res.ID, in, actionOf(res.Created))

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{"id": res.ID, "created": res.Created})
}

// SetStatus handles PATCH /v1/conventions/:id/status.  Deactivating is
// unconditional; reactivating re-runs the overlap check so a dormant
// window cannot come back into conflict.
func (h *ConventionHandler) SetStatus(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid convention id"})
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil || body.Active == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "active is required"})
	}
	if err := h.Orchestrator.SetActive(c.Request().Context(), id, *body.Active); err != nil {
		return writeEngineError(c, err)
	}
	if rec, err := h.Repo.GetByID(c.Request().Context(), id); err == nil {
		h.publishUpserted(c, id, engine.UpsertInput{
			ClientID:        rec.ClientID,
			CategoryID:      rec.CategoryID,
			HotelID:         rec.HotelID,
			ValidityStart:   rec.ValidityStart,
			ValidityEnd:     rec.ValidityEnd,
			DefaultPrice:    rec.DefaultPrice,
			FlatMonthlyRate: rec.FlatMonthlyRate,
			Active:          rec.Active,
		}, "status_changed")
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "active": *body.Active})
}

// Delete handles DELETE /v1/conventions/:id.  Administrative removal;
// the record simply ceases to participate in resolution and overlap
// checks.
func (h *ConventionHandler) Delete(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid convention id"})
	}
	if err := h.Repo.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrConventionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "convention not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.NoContent(http.StatusNoContent)
}

// GetByID handles GET /v1/conventions/:id.
func (h *ConventionHandler) GetByID(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid convention id"})
	}
	rec, err := h.Repo.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrConventionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "convention not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toConventionResponse(*rec))
}

// ListByClient handles GET /v1/clients/:id/conventions.  The optional
// ?active=true query filters to active agreements.  Results are ordered
// newest validity window first.
func (h *ConventionHandler) ListByClient(c echo.Context) error {
	clientID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || clientID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client id"})
	}
	activeOnly := c.QueryParam("active") == "true"
	list, err := h.Repo.ListByClient(c.Request().Context(), clientID, activeOnly)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]conventionResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toConventionResponse(rec))
	}
	return c.JSON(http.StatusOK, out)
}

// ListByPeriod handles GET /v1/conventions.  Query parameters: from and
// to (required, YYYY-MM-DD) bound the period; hotel_id and category_id
// are optional filters.  Only active conventions whose validity window
// intersects the period are returned.
func (h *ConventionHandler) ListByPeriod(c echo.Context) error {
	from, err := time.Parse(model.DateLayout, c.QueryParam("from"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from, expected YYYY-MM-DD"})
	}
	to, err := time.Parse(model.DateLayout, c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to, expected YYYY-MM-DD"})
	}
	if to.Before(from) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must not precede from"})
	}
	var hotelID, categoryID *uint64
	if raw := c.QueryParam("hotel_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hotel_id"})
		}
		hotelID = &v
	}
	if raw := c.QueryParam("category_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category_id"})
		}
		categoryID = &v
	}
	list, err := h.Repo.ListByPeriod(c.Request().Context(), from, to, hotelID, categoryID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]conventionResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toConventionResponse(rec))
	}
	return c.JSON(http.StatusOK, out)
}

// CheckOverlap handles GET /v1/conventions/check-overlap.  It lets the
// administration UI warn about conflicting dates before submitting an
// upsert; the authoritative check still happens inside the upsert's
// scope lock.  Query parameters: client_id, category_id, start
// (required), end and exclude_id (optional).
func (h *ConventionHandler) CheckOverlap(c echo.Context) error {
	clientID, err := queryUint(c, "client_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client_id"})
	}
	categoryID, err := queryUint(c, "category_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category_id"})
	}
	start, err := time.Parse(model.DateLayout, c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start, expected YYYY-MM-DD"})
	}
	var end *time.Time
	if raw := c.QueryParam("end"); raw != "" {
		t, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end, expected YYYY-MM-DD"})
		}
		end = &t
	}
	var excludeID uint64
	if raw := c.QueryParam("exclude_id"); raw != "" {
		excludeID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid exclude_id"})
		}
	}
	overlap, err := engine.HasOverlap(c.Request().Context(), h.Repo, clientID, categoryID, start, end, excludeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"has_overlap": overlap})
}

// publishUpserted emits a convention.upserted event.  Publishing is
// best-effort: a broker outage must not fail an already-committed
// write, so errors are logged by the publisher and ignored here.
func (h *ConventionHandler) publishUpserted(c echo.Context, id uint64, in engine.UpsertInput, action string) {
	ev := queue.ConventionUpsertedEvent{
		ConventionID:  id,
		ClientID:      in.ClientID,
		CategoryID:    in.CategoryID,
		HotelID:       in.HotelID,
		ValidityStart: in.ValidityStart.Format(model.DateLayout),
		DefaultPrice:  in.DefaultPrice.String(),
		Active:        in.Active,
		Action:        action,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if in.ValidityEnd != nil {
		end := in.ValidityEnd.Format(model.DateLayout)
		ev.ValidityEnd = &end
	}
	if in.FlatMonthlyRate != nil {
		rate := in.FlatMonthlyRate.String()
		ev.FlatMonthlyRate = &rate
	}
	_ = queue_publisher.PublishConventionUpserted(c.Request().Context(), ev)
}

// writeEngineError maps engine and repository errors onto the HTTP
// error taxonomy: 400 for bad input, 409 for window conflicts, 404 for
// a missing update target, 503 when the scope lock wait timed out and
// 500 for everything else.
func writeEngineError(c echo.Context, err error) error {
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Error()})
	case errors.Is(err, engine.ErrOverlapConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "dates already covered by another convention for this client and category"})
	case errors.Is(err, repository.ErrConventionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "convention not found"})
	case errors.Is(err, repository.ErrScopeLockTimeout):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "another change for this client and category is in progress, retry later"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

// paramID parses the :id path parameter.
func paramID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// actionOf names the event action for an upsert result.
func actionOf(created bool) string {
	if created {
		return "created"
	}
	return "updated"
}
