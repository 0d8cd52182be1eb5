package web

import (
	"net/http"
	"time"

	"github.com/kjk/guestbook/log"
)

// health checks would drown out real requests in the log
var notLoggedURLs = map[string]bool{
	"/ping": true,
}

func withAccessLog(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if notLoggedURLs[r.URL.Path] {
			h.ServeHTTP(w, r)
			return
		}
		cw := NewCapturingResponseWriter(w)
		timeStart := time.Now()
		h.ServeHTTP(cw, r)
		err := log.HTTPRequest(r, cw.StatusCode, cw.Size, time.Since(timeStart))
		log.IfErrf(err, "log.HTTPRequest() failed with '%s'\n", err)
	})
}

// withRecover turns a panic in a handler into 500 instead of
// a dropped connection
func withRecover(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			log.Errorf("panic serving '%s': %v\n", r.URL.Path, p)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		h.ServeHTTP(w, r)
	})
}
