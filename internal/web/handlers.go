package web

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/ops"
)

// Handlers contains HTTP route handlers for the save browser.
type Handlers struct {
	save     *archive.Save
	renderer *Renderer
}

// HandleTree handles GET /tree: list one folder.
func (h *Handlers) HandleTree(w http.ResponseWriter, r *http.Request) {
	revision, err := parseRevision(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	dir := r.URL.Query().Get("dir")

	result, err := ops.List(r.Context(), h.save, ops.ListInput{
		Dir:      dir,
		Revision: revision,
		Limit:    parseIntParam(r, "limit", 500),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data := TreePageData{
		PageData: h.renderer.page("Files", "tree", revision),
		Dir:      dir,
		Crumbs:   crumbs(dir),
		Items:    result.Items,
		Pager:    newPager(r, result.Pagination, len(result.Items)),
	}
	if dir != "" {
		data.Title = dir
	} else {
		// root page carries the save summary
		data.Stats, err = ops.Stats(r.Context(), h.save, ops.StatsInput{Revision: revision})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}
	h.renderer.renderPage(w, "tree", data)
}

// HandleFile handles GET /file: decode one .mps file.
func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	revision, err := parseRevision(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	rotate := parseBoolParam(r, "rotate")

	result, err := ops.Read(r.Context(), h.save, ops.ReadInput{
		Path:     r.URL.Query().Get("path"),
		Revision: revision,
		Rotate:   rotate,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	var body any = result.Record
	if rotate {
		body = result.Rows
	}
	text, err := indentJSON(body)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "file", FilePageData{
		PageData: h.renderer.page(result.Path, "tree", revision),
		Path:     result.Path,
		Schema:   result.Schema,
		Rotate:   rotate,
		View:     result.View,
		JSON:     text,
	})
}

// HandleSchema handles GET /schema: show a parsed schema.
func (h *Handlers) HandleSchema(w http.ResponseWriter, r *http.Request) {
	revision, err := parseRevision(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.Schema(r.Context(), h.save, ops.SchemaInput{
		Path:     r.URL.Query().Get("path"),
		Revision: revision,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	text, err := indentJSON(result.Schema)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "schema", SchemaPageData{
		PageData: h.renderer.page(result.Path, "tree", revision),
		Path:     result.Path,
		For:      result.For,
		Root:     result.Schema.Root,
		JSON:     text,
	})
}

// HandleFind handles GET /find: glob over full paths.
func (h *Handlers) HandleFind(w http.ResponseWriter, r *http.Request) {
	revision, err := parseRevision(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	pattern := r.URL.Query().Get("pattern")

	data := FindPageData{
		PageData: h.renderer.page("Find", "find", revision),
		Pattern:  pattern,
		HasQuery: pattern != "",
	}
	if pattern == "" {
		h.renderer.renderPage(w, "find", data)
		return
	}

	result, err := ops.Find(r.Context(), h.save, ops.FindInput{
		Pattern:  pattern,
		Revision: revision,
		Limit:    parseIntParam(r, "limit", 200),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Items = result.Items
	data.Pager = newPager(r, result.Pagination, len(result.Items))
	h.renderer.renderPage(w, "find", data)
}

// HandleOwners handles GET /owners: the owner leaderboard.
func (h *Handlers) HandleOwners(w http.ResponseWriter, r *http.Request) {
	revision, err := parseRevision(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	input := ops.OwnersInput{
		Revision: revision,
		SortBy:   r.URL.Query().Get("sort"),
		Limit:    parseIntParam(r, "limit", 0),
		HTML:     !wantsJSON(r),
	}
	if cols := r.URL.Query()["column"]; len(cols) > 0 {
		input.Columns = cols
	}

	result, err := ops.Owners(r.Context(), h.save, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// goldmark runs without WithUnsafe, so cell text cannot inject markup.
	h.renderer.renderPage(w, "owners", OwnersPageData{
		PageData:  h.renderer.page("Owners", "owners", revision),
		Path:      result.Path,
		TableHTML: template.HTML(result.HTML),
	})
}

// HandleRevisions handles GET /revisions: the save's history.
func (h *Handlers) HandleRevisions(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Revisions(r.Context(), h.save)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "revisions", RevisionsPageData{
		PageData: h.renderer.page("Revisions", "revisions", 0),
		Items:    result.Items,
		Latest:   result.Latest,
	})
}

// parseRevision parses the revision query parameter. Absent means latest.
func parseRevision(r *http.Request) (int64, error) {
	s := r.URL.Query().Get("revision")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.NewInvalidRequest("revision must be an integer")
	}
	return v, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
