package web

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjk/guestbook/guestbook"
	"github.com/kjk/guestbook/log"
)

type entryView struct {
	Author      string
	Comment     string
	PostedAt    string
	PostedAtISO string
	Age         string
}

type homeData struct {
	Entries []entryView
	Count   int
}

func makeHomeData(entries []guestbook.Entry, now time.Time) *homeData {
	res := &homeData{
		Count: len(entries),
	}
	for _, e := range entries {
		v := entryView{
			Author:      e.Author,
			Comment:     e.Comment,
			PostedAt:    e.PostedAt.Format(postedAtFormat),
			PostedAtISO: e.PostedAt.Format(time.RFC3339),
			Age:         FormatAge(e.PostedAt, now),
		}
		res.Entries = append(res.Entries, v)
	}
	return res
}

// GET /
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	data := makeHomeData(s.store.List(), s.now())
	// render to a buffer so that a template error can still be 500
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "home.html", data); err != nil {
		log.Errorf("executing home.html failed with '%s'\n", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// POST /
// form fields: author, comment
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	// empty value is fine, a missing field is not
	author, ok1 := formValue(r.PostForm, "author")
	comment, ok2 := formValue(r.PostForm, "comment")
	if !ok1 || !ok2 {
		http.Error(w, "author and comment are required", http.StatusBadRequest)
		return
	}
	// the file is JSON which can only hold utf-8; replacing here means
	// the store keeps exactly what it was given
	author = strings.ToValidUTF8(author, "\uFFFD")
	comment = strings.ToValidUTF8(comment, "\uFFFD")
	timeStart := time.Now()
	if err := s.store.Append(author, comment); err != nil {
		log.Errorf("store.Append() failed with '%s'\n", err)
		log.ErrorEventFromRequest(r, err, "guestbook_append_failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	log.Verbosef("appended entry by '%s' in %s\n", author, time.Since(timeStart))
	smartRedirect(w, r, "/", http.StatusFound)
}

func formValue(form url.Values, name string) (string, bool) {
	vals, ok := form[name]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// GET /ping
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("pong"))
}

func makeFullRedirectURL(path string, reqURL *url.URL) string {
	if reqURL.RawQuery != "" {
		path = path + "?" + reqURL.RawQuery
	}
	if reqURL.Fragment != "" {
		path = path + "#" + reqURL.EscapedFragment()
	}
	return path
}

// smartRedirect redirects to uri but also adds query / fragment from r.URL
func smartRedirect(w http.ResponseWriter, r *http.Request, uri string, code int) {
	uri = makeFullRedirectURL(uri, r.URL)
	http.Redirect(w, r, uri, code)
}
