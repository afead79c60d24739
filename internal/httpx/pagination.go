package httpx

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	MaxSearchLength  = 100
)

type PageRequest struct {
	Page   int
	Limit  int
	Search string
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// MaxPage is the last page whose offset still fits in an int32 for limit.
func MaxPage(limit int) int {
	return math.MaxInt32/limit + 1
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(req PageRequest, total int) Pagination {
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Pagination{Page: req.Page, Limit: req.Limit, Total: total, Pages: pages}
}

// ParsePage reads page, limit and search from the query string. Any invalid
// value is reported as a field error rather than silently clamped.
func ParsePage(r *http.Request) (PageRequest, []FieldError) {
	q := r.URL.Query()
	req := PageRequest{Page: 1, Limit: DefaultPageLimit}
	var fields []FieldError

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, FieldError{Field: "page", Rule: "min", Param: "1"})
		} else {
			req.Page = n
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil || n < 1:
			fields = append(fields, FieldError{Field: "limit", Rule: "min", Param: "1"})
		case n > MaxPageLimit:
			fields = append(fields, FieldError{Field: "limit", Rule: "max", Param: strconv.Itoa(MaxPageLimit)})
		default:
			req.Limit = n
		}
	}
	// the offset is handed to an INTEGER procedure argument
	if maxPage := MaxPage(req.Limit); req.Page > maxPage {
		fields = append(fields, FieldError{Field: "page", Rule: "max", Param: strconv.Itoa(maxPage)})
		req.Page = 1
	}
	req.Search = strings.TrimSpace(q.Get("search"))
	if utf8.RuneCountInString(req.Search) > MaxSearchLength {
		fields = append(fields, FieldError{Field: "search", Rule: "max", Param: strconv.Itoa(MaxSearchLength)})
	}
	return req, fields
}
