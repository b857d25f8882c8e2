package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/model"
)

// PricingHandler exposes the read path of the engine.  Resolution is a
// pure read against the store snapshot and needs no locking, so these
// endpoints can run with unlimited concurrency and sit behind the
// response cache.
type PricingHandler struct {
	Resolver *engine.Resolver
}

// NewPricingHandler constructs a PricingHandler.  The resolver must be
// non-nil.
func NewPricingHandler(resolver *engine.Resolver) *PricingHandler {
	if resolver == nil {
		panic("nil resolver passed to NewPricingHandler")
	}
	return &PricingHandler{Resolver: resolver}
}

// ResolvePrice handles GET /v1/pricing/resolve.  Query parameters:
// client_id and category_id (required), date (required, YYYY-MM-DD) and
// month (optional, 1-12, overrides which monthly slot is consulted).
// When a convention applies it returns the undiscounted base price, its
// source and the convention's discount percentage for the caller to
// apply.  When none applies it returns 200 with found=false; callers
// fall back to their standard rate, so this is not an error.
func (h *PricingHandler) ResolvePrice(c echo.Context) error {
	clientID, err := queryUint(c, "client_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client_id"})
	}
	categoryID, err := queryUint(c, "category_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category_id"})
	}
	date, err := time.Parse(model.DateLayout, c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date, expected YYYY-MM-DD"})
	}
	month := 0
	if raw := c.QueryParam("month"); raw != "" {
		month, err = strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid month, expected 1-12"})
		}
	}

	res, err := h.Resolver.Resolve(c.Request().Context(), clientID, categoryID, date, month)
	if err != nil {
		if errors.Is(err, engine.ErrNoConvention) {
			return c.JSON(http.StatusOK, echo.Map{"found": false})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := echo.Map{
		"found":         true,
		"convention_id": res.ConventionID,
		"price":         res.Price,
		"source":        res.Source,
	}
	if res.DiscountPercent != nil {
		out["discount_percent"] = *res.DiscountPercent
	}
	return c.JSON(http.StatusOK, out)
}

// queryUint parses a required positive integer query parameter.
func queryUint(c echo.Context, name string) (uint64, error) {
	v, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}
