package scheduling

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
	api.GET("/appointments", h.List)
	api.GET("/appointments/today", h.Today)
	api.GET("/appointments/availability", h.Availability)
	api.GET("/appointments/:id", h.Get)
	api.GET("/appointment-types", h.Types)
	api.GET("/appointments/stats", h.Stats, auth.RequireCapability(auth.CanReport))

	write := api.Group("", auth.RequireCapability(auth.CanSchedule))
	write.POST("/appointments", h.Create)
	write.PUT("/appointments/:id", h.Update)
	write.DELETE("/appointments/:id", h.Cancel)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func queryInt64(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("invalid %s", name)
	}
	return v, nil
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
	f := Filter{State: State(c.QueryParam("state")), Priority: c.QueryParam("priority")}
	var (
		err  error
		dept int64
	)
	if dept, err = queryInt64(c, "department_id"); err != nil {
		return f, err
	}
	f.DepartmentID = int(dept)
	if f.PatientID, err = queryInt64(c, "patient_id"); err != nil {
		return f, err
	}
	if f.StaffID, err = queryInt64(c, "staff_id"); err != nil {
		return f, err
	}
	if f.Date, err = queryDate(c, "date"); err != nil {
		return f, err
	}
	if f.DateFrom, err = queryDate(c, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(c, "date_to"); err != nil {
		return f, err
	}
	return f, nil
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

func (h *Handler) Today(c echo.Context) error {
	dept, err := queryInt64(c, "department_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	views, total, err := h.svc.Today(c.Request().Context(), int(dept), pg.Skip, pg.Limit)
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
		return apperr.Wrap(apperr.KindValidation, "malformed appointment body", err)
	}
	a, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed appointment body", err)
	}
	a, err := h.svc.Update(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, c.QueryParam("reason"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Availability(c echo.Context) error {
	staffID, err := queryInt64(c, "staff_id")
	if err != nil {
		return err
	}
	date, err := queryDate(c, "date")
	if err != nil {
		return err
	}
	start, err := civil.ParseClock(c.QueryParam("start_time"))
	if err != nil {
		return apperr.Validation("invalid start_time: expected HH:MM")
	}
	exclude, err := queryInt64(c, "exclude_id")
	if err != nil {
		return err
	}
	av, err := h.svc.Availability(c.Request().Context(), Slot{StaffID: staffID, Date: date, StartTime: start}, exclude)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) Types(c echo.Context) error {
	types, err := h.svc.Types(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types)
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
	dept, err := queryInt64(c, "department_id")
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), from, to, int(dept))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
