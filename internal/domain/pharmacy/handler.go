package pharmacy

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/pkg/civil"
	"github.com/hospital/hospital/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/pharmacy/medications", h.SearchMedications)

	read := api.Group("", auth.RequireCapability(auth.CanViewRecords))
	read.GET("/pharmacy/prescription-requests", h.ListRequests)
	read.GET("/pharmacy/prescription-requests/:id", h.GetRequest)

	write := api.Group("", auth.RequireCapability(auth.CanPrescribe))
	write.POST("/pharmacy/prescription-requests", h.CreateRequest)
}

func (h *Handler) SearchMedications(c echo.Context) error {
	f := MedicationFilter{
		Name:             c.QueryParam("name"),
		ActiveIngredient: c.QueryParam("active_ingredient"),
		Category:         c.QueryParam("category"),
		OnlyAvailable:    true,
	}
	if raw := c.QueryParam("only_available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperr.Validation("invalid only_available")
		}
		f.OnlyAvailable = v
	}
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return apperr.Validation("invalid limit")
		}
		f.Limit = v
	}
	meds, err := h.svc.SearchMedications(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if meds == nil {
		meds = []*Medication{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  meds,
		"total": len(meds),
	})
}

func requestFilterFrom(c echo.Context) (RequestFilter, error) {
	f := RequestFilter{State: RequestState(c.QueryParam("state"))}
	if raw := c.QueryParam("urgent"); raw != "" {
		urgent, err := strconv.ParseBool(raw)
		if err != nil {
			return f, apperr.Validation("invalid urgent")
		}
		f.Urgent = &urgent
	}
	if raw := c.QueryParam("staff_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, apperr.Validation("invalid staff_id")
		}
		f.PrescriberID = id
	}
	if raw := c.QueryParam("date_from"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return f, apperr.Validation("invalid date_from: expected YYYY-MM-DD")
		}
		f.DateFrom = d
	}
	return f, nil
}

func (h *Handler) ListRequests(c echo.Context) error {
	f, err := requestFilterFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	views, total, err := h.svc.List(c.Request().Context(), f, pg.Skip, pg.Limit)
	if err != nil {
		return err
	}
	if views == nil {
		views = []View{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg))
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.Validation("invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// CreateRequest defaults the prescriber to the caller.
func (h *Handler) CreateRequest(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed prescription request body", err)
	}
	if req.PrescriberID == 0 {
		req.PrescriberID = auth.StaffIDFromContext(c.Request().Context())
	}
	pr, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pr)
}
