package web

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/u"
)

//go:embed static
var staticFS embed.FS

// staticHandler serves files embedded under static/ directory.
// Text files are served brotli-compressed to clients that accept it.
// Compression is done on first request and cached.
type staticHandler struct {
	fsys      fs.FS
	urlPrefix string
	modTime   time.Time

	mu      sync.Mutex
	brCache map[string][]byte
}

func newStaticHandler(fsys fs.FS, urlPrefix string) *staticHandler {
	return &staticHandler{
		fsys:      fsys,
		urlPrefix: urlPrefix,
		// embedded files don't have modification time
		modTime: time.Now(),
		brCache: map[string][]byte{},
	}
}

func canServeCompressed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".txt", ".css", ".js", ".xml", ".svg", ".json":
		return true
	}
	return false
}

func acceptsBr(r *http.Request) bool {
	enc := r.Header.Get("Accept-Encoding")
	for _, s := range strings.Split(enc, ",") {
		s, _, _ = strings.Cut(s, ";")
		if strings.TrimSpace(s) == "br" {
			return true
		}
	}
	return false
}

func (h *staticHandler) getBr(name string, d []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if br, ok := h.brCache[name]; ok {
		return br, nil
	}
	br, err := u.BrCompressDataBest(d)
	if err != nil {
		return nil, err
	}
	h.brCache[name] = br
	return br, nil
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, h.urlPrefix)
	if name == "" || !fs.ValidPath(name) {
		http.NotFound(w, r)
		return
	}
	path := "static/" + name
	d, err := fs.ReadFile(h.fsys, path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", u.MimeTypeFromFileName(name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if canServeCompressed(name) {
		// https://www.maxcdn.com/blog/accept-encoding-its-vary-important/
		// prevent caching compressed version for clients that don't accept it
		w.Header().Add("Vary", "Accept-Encoding")
		if acceptsBr(r) {
			br, err := h.getBr(path, d)
			if err == nil {
				w.Header().Set("Content-Encoding", "br")
				http.ServeContent(w, r, name, h.modTime, bytes.NewReader(br))
				return
			}
			log.Errorf("compressing '%s' failed with '%s'\n", path, err)
		}
	}
	http.ServeContent(w, r, name, h.modTime, bytes.NewReader(d))
}
