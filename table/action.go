package table

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// URL codes of a viewset.
const (
	CodeList   = "list"
	CodeDetail = "detail"
	CodeCreate = "create"
	CodeUpdate = "update"
	CodeDelete = "delete"
	CodeTable  = "table"
	CodeChart  = "chart"
)

// URLs maps URL codes to paths. Paths of per-record codes contain a
// "{pk}" placeholder.
type URLs map[string]string

// Reverse returns the path of code for the record pk, or "" when the
// viewset has no such URL.
func (u URLs) Reverse(code string, pk any) string {
	p, ok := u[code]
	if !ok {
		return ""
	}
	if pk == nil {
		return p
	}
	return strings.ReplaceAll(p, "{pk}", url.PathEscape(fmt.Sprint(pk)))
}

// Action is a per-row control targeting a record URL.
type Action struct {
	Code string
	Icon string
	// Method is the htmx request verb; empty means get.
	Method  string
	PushURL bool
	Confirm string
}

var (
	DetailAction = Action{
		Code: CodeDetail,
		Icon: `<i class="fa-solid fa-magnifying-glass text-primary"></i>`,
	}
	UpdateAction = Action{
		Code: CodeUpdate,
		Icon: `<i class="fa-solid fa-pen-to-square text-secondary"></i>`,
	}
	DeleteAction = Action{
		Code:    CodeDelete,
		Icon:    `<i class="fa-solid fa-trash text-danger"></i>`,
		Method:  "delete",
		Confirm: "Are you sure?",
	}
)

// DefaultActions are the actions of a table configured without any.
var DefaultActions = []Action{DetailAction, UpdateAction, DeleteAction}

// Render returns the control for the record pk, or "" when urls has no
// path for the action.
func (a Action) Render(urls URLs, pk any) string {
	target := urls.Reverse(a.Code, pk)
	if target == "" {
		return ""
	}
	href := target
	if list := urls.Reverse(CodeList, nil); list != "" {
		href += "?next=" + url.QueryEscape(list)
	}

	method := a.Method
	if method == "" {
		method = "get"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<a class="btn btn-link" href="%s" hx-%s="%s" hx-swap="none" hx-push-url="%t"`,
		html.EscapeString(href), method, html.EscapeString(target), a.PushURL)
	if a.Confirm != "" {
		fmt.Fprintf(&b, ` hx-confirm="%s"`, html.EscapeString(a.Confirm))
	}
	b.WriteString(">")
	b.WriteString(a.Icon)
	b.WriteString("</a>")
	return b.String()
}

// RenderActions concatenates the controls of actions for the record pk
// into one button group.
func RenderActions(actions []Action, urls URLs, pk any) string {
	var b strings.Builder
	b.WriteString(`<div class="btn-group">`)
	for _, a := range actions {
		b.WriteString(a.Render(urls, pk))
	}
	b.WriteString(`</div>`)
	return b.String()
}
