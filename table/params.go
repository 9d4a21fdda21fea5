package table

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPageSize is used when the request carries no usable length.
const DefaultPageSize = 10

// MaxPageSize caps the requested length.
const MaxPageSize = 1000

// Params captures search, sort and pagination from a DataTables request.
type Params struct {
	Draw   int
	Start  int
	Length int
	Search string

	// OrderColumn indexes the data columns; -1 keeps the default order.
	OrderColumn int
	OrderDesc   bool
}

// ParseParams reads the DataTables parameters from q. Malformed values fall
// back to their defaults.
func ParseParams(q url.Values) Params {
	p := Params{Draw: 1, Length: DefaultPageSize, OrderColumn: -1}

	if v := q.Get("draw"); v != "" {
		fmt.Sscanf(v, "%d", &p.Draw)
	}
	if v := q.Get("length"); v != "" {
		fmt.Sscanf(v, "%d", &p.Length)
	}
	if p.Length <= 0 {
		p.Length = DefaultPageSize
	}
	p.Length = min(p.Length, MaxPageSize)
	if v := q.Get("start"); v != "" {
		fmt.Sscanf(v, "%d", &p.Start)
	}
	if p.Start < 0 {
		p.Start = 0
	}

	p.Search = strings.TrimSpace(q.Get("search[value]"))

	if v := q.Get("order[0][column]"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &p.OrderColumn); err != nil || p.OrderColumn < 0 {
			p.OrderColumn = -1
		}
	}
	p.OrderDesc = strings.EqualFold(q.Get("order[0][dir]"), "desc")
	return p
}

// Encode renders p back into request parameters.
func (p Params) Encode() url.Values {
	q := url.Values{}
	q.Set("draw", fmt.Sprint(p.Draw))
	q.Set("start", fmt.Sprint(p.Start))
	q.Set("length", fmt.Sprint(p.Length))
	if p.Search != "" {
		q.Set("search[value]", p.Search)
	}
	if p.OrderColumn >= 0 {
		q.Set("order[0][column]", fmt.Sprint(p.OrderColumn))
		dir := "asc"
		if p.OrderDesc {
			dir = "desc"
		}
		q.Set("order[0][dir]", dir)
	}
	return q
}
