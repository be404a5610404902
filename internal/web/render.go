package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/logging"
	"github.com/hpungsan/brsave/internal/ops"
	"github.com/hpungsan/brsave/internal/vfs"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title    string
	Version  string
	Save     string
	Nav      string // active nav item: "tree", "find", "owners", "revisions"
	Revision int64  // requested revision, 0 = latest
}

// Crumb is one ancestor folder in a breadcrumb trail.
type Crumb struct {
	Name string
	Path string
}

// Pager holds the previous/next links of a paginated page.
type Pager struct {
	Prev  string
	Next  string
	From  int
	To    int
	Total int
}

// TreePageData is the template data for the folder listing.
type TreePageData struct {
	PageData
	Dir    string
	Crumbs []Crumb
	Items  []vfs.Entry
	Pager  Pager
	Stats  *ops.StatsOutput
}

// FilePageData is the template data for a decoded .mps file.
type FilePageData struct {
	PageData
	Path   string
	Schema string
	Rotate bool
	View   ops.View
	JSON   string
}

// SchemaPageData is the template data for a parsed schema.
type SchemaPageData struct {
	PageData
	Path string
	For  string
	Root string
	JSON string
}

// FindPageData is the template data for the path search page.
type FindPageData struct {
	PageData
	Pattern  string
	HasQuery bool
	Items    []vfs.Entry
	Pager    Pager
}

// OwnersPageData is the template data for the owner leaderboard.
type OwnersPageData struct {
	PageData
	Path      string
	TableHTML template.HTML
}

// RevisionsPageData is the template data for the revision history.
type RevisionsPageData struct {
	PageData
	Items  []vfs.Revision
	Latest int64
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Code       errors.ErrorCode
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	save      string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version, save string) (*Renderer, error) {
	funcMap := template.FuncMap{
		"link":        link,
		"formatCount": formatCount,
		"hasSuffix":   strings.HasSuffix,
	}

	// Parse layout as the base template
	layoutTmpl, err := template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := map[string]string{
		"tree":      "tree.html",
		"file":      "file.html",
		"schema":    "schema.html",
		"find":      "find.html",
		"owners":    "owners.html",
		"revisions": "revisions.html",
		"error":     "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t, err := layoutTmpl.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		save:      save,
	}, nil
}

// page returns the common page fields.
func (r *Renderer) page(title, nav string, revision int64) PageData {
	return PageData{Title: title, Version: r.version, Save: r.save, Nav: nav, Revision: revision}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	logger := logging.Component("web")
	t, ok := r.templates[name]
	if !ok {
		logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error().Err(err).Str("template", name).Msg("template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
// INTERNAL messages are replaced so local paths and driver errors stay in the log.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	sErr, ok := errors.As(err)
	if !ok {
		sErr = errors.NewInternal(err)
	}

	status := statusFor(sErr.Code)
	message := sErr.Message
	if sErr.Code == errors.ErrInternal {
		logger := logging.Component("web")
		logger.Error().Err(err).Str("url", req.URL.String()).Msg("request failed")
		message = "an internal error occurred"
	}

	// JSON request
	if wantsJSON(req) {
		errorObj := map[string]any{
			"code":    string(sErr.Code),
			"message": message,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		renderJSON(w, status, map[string]any{"error": errorObj})
		return
	}

	// Full error page
	r.renderPageStatus(w, status, "error", ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status), "", 0),
		StatusCode: status,
		Code:       sErr.Code,
		Message:    message,
	})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidRequest:
		return http.StatusBadRequest
	case errors.ErrFileNotFound, errors.ErrNoMpsAtPath, errors.ErrNotFound, errors.ErrSchemaNotFound:
		return http.StatusNotFound
	case errors.ErrInternal:
		return http.StatusInternalServerError
	default:
		// the save's bytes could not be decoded
		return http.StatusUnprocessableEntity
	}
}

// wantsJSON reports whether the client asked for JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// indentJSON pretty-prints v for a <pre> block.
func indentJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(b), nil
}

// link builds base?k1=v1&k2=v2 from key/value pairs.
// Empty strings, zero numbers and false are left out.
func link(base string, kv ...any) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case string:
			if v != "" {
				q.Set(key, v)
			}
		case int:
			if v != 0 {
				q.Set(key, strconv.Itoa(v))
			}
		case int64:
			if v != 0 {
				q.Set(key, strconv.FormatInt(v, 10))
			}
		case bool:
			if v {
				q.Set(key, "true")
			}
		}
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// crumbs splits a folder path into its ancestors, outermost first.
func crumbs(dir string) []Crumb {
	if dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	out := make([]Crumb, len(parts))
	for i, name := range parts {
		out[i] = Crumb{Name: name, Path: strings.Join(parts[:i+1], "/")}
	}
	return out
}

// newPager builds previous/next links that keep the request's other parameters.
func newPager(r *http.Request, p ops.Pagination, shown int) Pager {
	pg := Pager{From: p.Offset + 1, To: p.Offset + shown, Total: p.Total}
	if shown == 0 {
		pg.From = 0
	}
	if p.Offset > 0 {
		pg.Prev = withOffset(r.URL, max(p.Offset-p.Limit, 0))
	}
	if p.HasMore {
		pg.Next = withOffset(r.URL, p.Offset+p.Limit)
	}
	return pg
}

func withOffset(u *url.URL, offset int) string {
	q := u.Query()
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	} else {
		q.Del("offset")
	}
	if len(q) == 0 {
		return u.Path
	}
	return u.Path + "?" + q.Encode()
}

// formatCount formats an integer with comma thousands separators.
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
