package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds skip/limit pagination extracted from a request.
type Params struct {
	Skip  int
	Limit int
}

// FromContext reads ?skip= and ?limit=. Missing or malformed values fall back
// to the defaults; limit is clamped to MaxLimit.
func FromContext(c echo.Context) Params {
	return WithLimits(c, DefaultLimit, MaxLimit)
}

// WithLimits is FromContext with endpoint-specific default and maximum.
func WithLimits(c echo.Context, def, max int) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}

	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	if skip < 0 {
		skip = 0
	}
	return Params{Skip: skip, Limit: limit}
}

// Response wraps a paginated list.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Skip       int         `json:"skip"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
	HasNext    bool        `json:"has_next"`
	HasPrev    bool        `json:"has_prev"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:       data,
		Total:      total,
		Skip:       p.Skip,
		Limit:      p.Limit,
		TotalPages: p.TotalPages(total),
		HasNext:    p.HasNext(total),
		HasPrev:    p.HasPrevious(),
	}
}

// TotalPages rounds up; an empty result has zero pages.
func (p Params) TotalPages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

func (p Params) HasNext(total int) bool {
	return p.Skip+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Skip > 0
}
