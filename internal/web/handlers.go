package web

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/ops"
)

// Handlers contains HTTP route handlers for the corpus browser.
type Handlers struct {
	cfg      *config.Config
	path     string
	renderer *Renderer
}

func (h *Handlers) page(title, nav string) PageData {
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Corpus:  h.path,
		Nav:     nav,
	}
}

// HandleFiles handles GET /files: freshness plus the content list.
func (h *Handlers) HandleFiles(w http.ResponseWriter, r *http.Request) {
	status, err := ops.Status(r.Context(), ops.StatusInput{Path: h.path})
	if err != nil {
		h.renderer.renderError(w, r, h.path, err)
		return
	}
	list, err := ops.List(ops.ListInput{Path: h.path})
	if err != nil {
		h.renderer.renderError(w, r, h.path, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, list)
		return
	}
	h.renderer.renderPage(w, r, "files", FilesPageData{
		PageData: h.page("Files", "files"),
		Status:   status,
		Files:    list.Files,
	})
}

// HandleFile handles GET /files/{file...}: the stored chunks of one file.
// Markdown files are also rendered as a whole.
func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if file == "" || !validFilePath(file) {
		h.renderer.renderError(w, r, h.path, errors.NewInvalidRequest("invalid file path"))
		return
	}

	result, err := ops.Chunks(r.Context(), ops.ChunksInput{Path: h.path, FilePath: file})
	if err != nil {
		h.renderer.renderError(w, r, h.path, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	var text strings.Builder
	for _, c := range result.Chunks {
		text.WriteString(c.Content)
	}
	data := FilePageData{
		PageData: h.page(file, "files"),
		FilePath: file,
		Chunks:   result.Chunks,
		Bytes:    text.Len(),
	}
	if isMarkdown(file) {
		data.RenderedHTML = renderMarkdown(text.String())
	}
	h.renderer.renderPage(w, r, "file", data)
}

// HandleSearch handles GET /search?q=: text retrieval against the index.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	topK := parseIntParam(r, "top_k", h.cfg.DefaultTopK)

	data := SearchPageData{
		PageData: h.page("Search", "search"),
		Query:    query,
		TopK:     topK,
		HasQuery: query != "",
	}
	if query == "" {
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	result, err := ops.Query(r.Context(), h.cfg, ops.QueryInput{Path: h.path, Text: query, TopK: topK})
	if err != nil {
		h.renderer.renderError(w, r, h.path, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	data.Result = result
	h.renderer.renderPage(w, r, "search", data)
}

// HandleStatus handles GET /status. It always answers JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := ops.Status(r.Context(), ops.StatusInput{Path: h.path})
	if err != nil {
		r.Header.Set("Accept", "application/json")
		h.renderer.renderError(w, r, h.path, err)
		return
	}
	renderJSON(w, http.StatusOK, status)
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

// validFilePath accepts clean, relative, slash-separated content paths.
func validFilePath(p string) bool {
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	return path.Clean(p) == p && p != "." && !strings.HasPrefix(p, "../") && p != ".."
}

func isMarkdown(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}
