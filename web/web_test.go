package web

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/guestbook/guestbook"
	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/require"
	"github.com/kjk/guestbook/u"
)

// memStore is guestbook.Storage in memory
type memStore struct {
	mu        sync.Mutex
	entries   []guestbook.Entry
	appendErr error
	now       time.Time
}

func (s *memStore) List() []guestbook.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]guestbook.Entry{}, s.entries...)
}

func (s *memStore) Append(author, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	e := guestbook.Entry{
		Author:   author,
		Comment:  comment,
		PostedAt: s.now,
	}
	s.entries = append([]guestbook.Entry{e}, s.entries...)
	return nil
}

var testNow = time.Date(2024, 5, 1, 10, 16, 30, 0, time.UTC)

func newTestServer(store guestbook.Storage) http.Handler {
	opts := &Options{
		Now: func() time.Time { return testNow },
	}
	return NewServer(store, opts).Handler()
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func postForm(uri string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, uri, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestHomeEmpty(t *testing.T) {
	h := newTestServer(&memStore{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `<form method="post" action="/">`)
	assert.Contains(t, body, `name="author"`)
	assert.Contains(t, body, `name="comment"`)
	assert.Contains(t, body, "No entries yet")
}

func TestHomeEntries(t *testing.T) {
	store := &memStore{
		entries: []guestbook.Entry{
			{Author: "Bob", Comment: "<b>Hi</b> Alice", PostedAt: testNow.Add(-5 * time.Minute)},
			{Author: "Alice", Comment: "Hello!", PostedAt: time.Date(2024, 4, 28, 9, 3, 0, 0, time.UTC)},
		},
	}
	h := newTestServer(store)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "2 entries")
	assert.Contains(t, body, "&lt;b&gt;Hi&lt;/b&gt; Alice")
	assert.False(t, strings.Contains(body, "<b>Hi</b>"))
	assert.Contains(t, body, "May 1, 2024 10:11")
	assert.Contains(t, body, "5 minutes ago")
	assert.Contains(t, body, "Apr 28, 2024 09:03")
	assert.Contains(t, body, "3 days ago")
	assert.Contains(t, body, `datetime="2024-04-28T09:03:00Z"`)
	// in the order returned by the store
	bob := strings.Index(body, "Bob")
	alice := strings.Index(body, `"author">Alice`)
	assert.True(t, bob > 0 && alice > bob)
}

func TestPostRedirects(t *testing.T) {
	store := &memStore{now: testNow}
	h := newTestServer(store)

	form := url.Values{
		"author":  {"Alice"},
		"comment": {"Hello!\nsecond line"},
	}
	rec := serve(h, postForm("/", form))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	entries := store.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice", entries[0].Author)
	assert.Equal(t, "Hello!\nsecond line", entries[0].Comment)

	// query is preserved
	rec = serve(h, postForm("/?lang=en", form))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?lang=en", rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "2 entries")
	assert.Contains(t, rec.Body.String(), "just now")
}

func TestPostEmptyValues(t *testing.T) {
	store := &memStore{now: testNow}
	h := newTestServer(store)
	form := url.Values{
		"author":  {""},
		"comment": {""},
	}
	rec := serve(h, postForm("/", form))
	assert.Equal(t, http.StatusFound, rec.Code)
	require.Len(t, store.List(), 1)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "anonymous")
}

func TestPostInvalidUTF8(t *testing.T) {
	store := &memStore{now: testNow}
	h := newTestServer(store)
	form := url.Values{
		"author":  {"Bob\xff"},
		"comment": {"Zoë \xc3\x28 ok"},
	}
	rec := serve(h, postForm("/", form))
	assert.Equal(t, http.StatusFound, rec.Code)
	entries := store.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "Bob\uFFFD", entries[0].Author)
	assert.Equal(t, "Zoë \uFFFD( ok", entries[0].Comment)
}

func TestPostInvalidUTF8FileStore(t *testing.T) {
	store := guestbook.New(filepath.Join(t.TempDir(), guestbook.DefaultFileName))
	h := newTestServer(store)
	form := url.Values{
		"author":  {"Bob\xff"},
		"comment": {"Hi Alice"},
	}
	rec := serve(h, postForm("/", form))
	assert.Equal(t, http.StatusFound, rec.Code)
	entries := store.List()
	require.Len(t, entries, 1)
	// what was stored is what we read back
	assert.Equal(t, "Bob\uFFFD", entries[0].Author)
}

func TestPostMissingField(t *testing.T) {
	store := &memStore{now: testNow}
	h := newTestServer(store)
	forms := []url.Values{
		{"author": {"Alice"}},
		{"comment": {"Hello!"}},
		{},
	}
	for _, form := range forms {
		rec := serve(h, postForm("/", form))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", form)
	}
	// fields in the url don't count
	rec := serve(h, postForm("/?author=Alice&comment=Hi", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, len(store.List()))
}

func TestPostAppendError(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	h := newTestServer(store)
	form := url.Values{
		"author":  {"Alice"},
		"comment": {"Hello!"},
	}
	rec := serve(h, postForm("/", form))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// we don't leak internal errors
	assert.False(t, strings.Contains(rec.Body.String(), "disk full"))
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&memStore{})
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := serve(h, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestNotFound(t *testing.T) {
	h := newTestServer(&memStore{})
	for _, uri := range []string{"/foo", "/static/", "/static/nope.css", "/static/../server.go"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, uri, nil))
		// "/static/../server.go" is cleaned by the mux and redirected
		assert.True(t, rec.Code == http.StatusNotFound || rec.Code == http.StatusMovedPermanently, "%s: %d", uri, rec.Code)
	}
}

func TestPing(t *testing.T) {
	h := newTestServer(&memStore{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestStatic(t *testing.T) {
	h := newTestServer(&memStore{})
	exp, err := fs.ReadFile(staticFS, "static/style.css")
	require.NoError(t, err)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
	assert.Equal(t, exp, rec.Body.Bytes())

	// twice to exercise the cache
	for range 2 {
		r := httptest.NewRequest(http.MethodGet, "/static/style.css", nil)
		r.Header.Set("Accept-Encoding", "gzip, deflate, br;q=0.9")
		rec = serve(h, r)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
		assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
		got, err := u.BrDecompressData(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, exp, got)
	}
}

func TestAcceptsBr(t *testing.T) {
	tests := map[string]bool{
		"":                  false,
		"gzip":              false,
		"br":                true,
		"gzip, deflate, br": true,
		"br;q=1.0, gzip":    true,
		"brotli":            false,
	}
	for enc, exp := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Accept-Encoding", enc)
		assert.Equal(t, exp, acceptsBr(r), enc)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		d   time.Duration
		exp string
	}{
		{0, "just now"},
		{-time.Hour, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5*time.Minute + 30*time.Second, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{3*time.Hour + 59*time.Minute, "3 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{49 * time.Hour, "2 days ago"},
		{400 * 24 * time.Hour, "400 days ago"},
	}
	for _, test := range tests {
		got := FormatAge(now.Add(-test.d), now)
		assert.Equal(t, test.exp, got, "%s", test.d)
	}
}

func TestAccessLog(t *testing.T) {
	dir := t.TempDir()
	log.Init(&log.Config{Dir: dir})
	t.Cleanup(log.Close)

	h := newTestServer(&memStore{})
	serve(h, httptest.NewRequest(http.MethodGet, "/?lang=en", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil))
	serve(h, httptest.NewRequest(http.MethodPut, "/", nil))

	path := filepath.Join(dir, "http", time.Now().UTC().Format("2006-01-02")+".txt")
	d, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(d)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"code":200`)
	assert.Contains(t, lines[0], `"query":"lang=en"`)
	assert.Contains(t, lines[1], `"code":405`)
	assert.False(t, strings.Contains(string(d), "/ping"))
}

func TestWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), guestbook.DefaultFileName)
	store := guestbook.New(path)
	srv := httptest.NewServer(NewServer(store, nil).Handler())
	defer srv.Close()

	// don't follow the redirect so we can check it
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	for _, author := range []string{"Alice", "Bob"} {
		form := url.Values{
			"author":  {author},
			"comment": {"Hello from " + author},
		}
		rsp, err := client.PostForm(srv.URL+"/", form)
		require.NoError(t, err)
		rsp.Body.Close()
		assert.Equal(t, http.StatusFound, rsp.StatusCode)
	}

	rsp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	d, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	body := string(d)
	assert.Contains(t, body, "Hello from Alice")
	assert.True(t, strings.Index(body, "Hello from Bob") < strings.Index(body, "Hello from Alice"))

	entries := store.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "Bob", entries[0].Author)
}

func TestRunShutdown(t *testing.T) {
	s := NewServer(&memStore{}, &Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run() didn't return after cancel")
	}
}

func TestRunAddressInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	s := NewServer(&memStore{}, &Options{Addr: l.Addr().String()})
	err = s.Run(context.Background())
	assert.Error(t, err)
}
