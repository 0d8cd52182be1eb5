// Package logtastic sends logs, events and errors to a logtastic server.
// Sending happens on a background goroutine and never blocks the caller.
// When the server is unreachable we drop logs for a while.
package logtastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/kjk/guestbook/log"
)

type op struct {
	uri  string
	mime string
	d    []byte
}

const (
	// how long to wait before we resume sending logs to the server
	// after a failure
	throttleTimeout = time.Second * 15

	requestTimeout = time.Second * 10

	queueSize = 1000

	mimeJSON      = "application/json"
	mimePlainText = "text/plain"
)

var (
	// host:port of logtastic server, e.g. "l.arslexis.io"
	// "http://" is added if it doesn't have a scheme
	// sending is disabled if empty
	Server = ""
	ApiKey = ""

	mu            sync.Mutex
	throttleUntil time.Time
	ch            chan op
	workerDone    chan struct{}
)

// can't use log.Logf() because with OnLog hook it would call us back
func logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	fmt.Print(s)
}

func throttle() {
	mu.Lock()
	throttleUntil = time.Now().Add(throttleTimeout)
	mu.Unlock()
}

func send(op op) error {
	r := requests.
		URL(op.uri).
		BodyBytes(op.d).
		ContentType(op.mime)
	if ApiKey != "" {
		r = r.Header("X-Api-Key", ApiKey)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return r.Fetch(ctx)
}

func worker(ch chan op, done chan struct{}) {
	defer close(done)
	for op := range ch {
		if err := send(op); err != nil {
			logf("logtastic: POST %s failed: %v, will throttle for %s\n", op.uri, err, throttleTimeout)
			throttle()
		}
	}
}

// must be called with mu held
func startWorkerLocked() {
	if ch != nil {
		return
	}
	ch = make(chan op, queueSize)
	workerDone = make(chan struct{})
	go worker(ch, workerDone)
}

// Stop sends queued logs and stops the background goroutine.
// Waits at most timeout for queued logs to be sent.
// Logging after Stop starts a new goroutine.
func Stop(timeout time.Duration) {
	mu.Lock()
	c, done := ch, workerDone
	ch, workerDone = nil, nil
	mu.Unlock()
	if c == nil {
		return
	}
	close(c)
	select {
	case <-done:
	case <-time.After(timeout):
		logf("logtastic: Stop() timed out after %s\n", timeout)
	}
}

func serverURL(uriPath string) string {
	s := strings.TrimSuffix(Server, "/")
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "http://" + s
	}
	return s + uriPath
}

func post(uriPath string, d []byte, mime string) {
	if Server == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if left := time.Until(throttleUntil); left > 0 {
		return
	}
	startWorkerLocked()
	op := op{
		uri:  serverURL(uriPath),
		mime: mime,
		d:    d,
	}
	select {
	case ch <- op:
	default:
		logf("logtastic: POST %s failed: queue full\n", op.uri)
	}
}

var referrerQueryParams = []string{
	"ref",
	"referer",
	"referrer",
	"source",
	"utm_source",
}

func getReferrer(r *http.Request) string {
	if referrer := r.Header.Get("Referer"); referrer != "" {
		return referrer
	}
	for _, param := range referrerQueryParams {
		if referrer := r.URL.Query().Get(param); referrer != "" {
			return referrer
		}
	}
	return ""
}

func addRequestInfo(r *http.Request, m map[string]any) {
	if r == nil {
		return
	}
	m["method"] = r.Method
	m["url"] = r.URL.String()
	m["ip"] = log.BestRemoteAddress(r)
	m["user_agent"] = r.UserAgent()
	if referrer := getReferrer(r); referrer != "" {
		m["referrer"] = referrer
	}
}

// Log sends a log line
func Log(s string) {
	post("/api/v1/log", []byte(s), mimePlainText)
}

// LogEvent sends an event. m is modified to include request info if r is not nil.
func LogEvent(r *http.Request, m map[string]any) {
	addRequestInfo(r, m)
	d, err := json.Marshal(m)
	if err != nil {
		logf("logtastic: json.Marshal() failed with '%s'\n", err)
		return
	}
	post("/api/v1/event", d, mimeJSON)
}

// LogError sends an error message. r can be nil.
func LogError(r *http.Request, s string) {
	m := map[string]any{}
	addRequestInfo(r, m)
	m["msg"] = s
	d, err := json.Marshal(m)
	if err != nil {
		logf("logtastic: json.Marshal() failed with '%s'\n", err)
		return
	}
	post("/api/v1/error", d, mimeJSON)
}
