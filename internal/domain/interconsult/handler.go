package interconsult

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
	read := api.Group("", auth.RequireCapability(auth.CanViewRecords))
	read.GET("/interconsultations", h.List)
	read.GET("/interconsultations/:id", h.Get)

	api.GET("/interconsultations/stats", h.Stats, auth.RequireCapability(auth.CanReport))

	write := api.Group("", auth.RequireCapability(auth.CanModifyRecords))
	write.POST("/interconsultations", h.Create)
	write.PUT("/interconsultations/:id/respond", h.Respond)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func queryDate(c echo.Context, name string) (civil.Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, apperr.Validationf("invalid %s: expected YYYY-MM-DD", name)
	}
	return d, nil
}

func filterFrom(c echo.Context) (Filter, error) {
	f := Filter{State: State(c.QueryParam("state"))}
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
		f.StaffID = id
	}
	var err error
	f.DateFrom, err = queryDate(c, "date_from")
	return f, err
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFrom(c)
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

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed interconsultation body", err)
	}
	ic, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ic)
}

// Respond defaults the responder to the session's username.
func (h *Handler) Respond(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed response body", err)
	}
	if req.ResponderName == "" {
		if claims := auth.ClaimsFromContext(c.Request().Context()); claims != nil {
			req.ResponderName = claims.Username
		}
	}
	ic, err := h.svc.Respond(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ic)
}

func (h *Handler) Stats(c echo.Context) error {
	from, err := queryDate(c, "date_from")
	if err != nil {
		return err
	}
	to, err := queryDate(c, "date_to")
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
