package log

import (
	"bytes"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/toon-format/toon-go"
)

// events are stored as records framed like:
// --- <len(data)> <unix ms> <name>\n
// <data>\n
// data is a map of event values encoded as toon
var eventHdrPrefix = []byte("--- ")

func panicIf(cond bool, msg string) {
	if cond {
		panic(msg)
	}
}

func marshalEventLine(name string, t time.Time, d []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(eventHdrPrefix) + len(name) + len(d) + 32)
	buf.Write(eventHdrPrefix)
	buf.WriteString(strconv.Itoa(len(d)))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	buf.WriteByte(' ')
	buf.WriteString(name)
	buf.WriteByte('\n')
	// for readability each record ends with a newline
	if len(d) > 0 {
		buf.Write(d)
		if d[len(d)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// EventRecord is an event read back from the events log
type EventRecord struct {
	Name      string
	Timestamp time.Time
	Data      []byte
}

// ParseEvents parses the content of an events log file
func ParseEvents(d []byte) ([]EventRecord, error) {
	var res []EventRecord
	for len(d) > 0 {
		idx := bytes.IndexByte(d, '\n')
		if idx == -1 || !bytes.HasPrefix(d, eventHdrPrefix) {
			return nil, fmt.Errorf("invalid event header in '%s'", limitString(string(d), 64))
		}
		hdr := string(d[len(eventHdrPrefix):idx])
		d = d[idx+1:]
		parts := strings.SplitN(hdr, " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid event header '%s'", hdr)
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil || n < 0 || n > len(d) {
			return nil, fmt.Errorf("invalid length in event header '%s'", hdr)
		}
		ms, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp in event header '%s'", hdr)
		}
		rec := EventRecord{
			Name:      parts[2],
			Timestamp: time.UnixMilli(ms),
			Data:      d[:n],
		}
		d = d[n:]
		if n > 0 && rec.Data[n-1] != '\n' && len(d) > 0 && d[0] == '\n' {
			d = d[1:]
		}
		res = append(res, rec)
	}
	return res, nil
}

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	rt := reflect.TypeOf(v)
	kind := rt.Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("event key is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// Event logs an event with key/value pairs in toon format
func Event(name string, vals ...any) {
	n := len(vals)
	panicIf(n%2 != 0, "Event: odd number of vals")
	var d []byte
	m := map[string]any{}
	if n > 0 {
		for i := 0; i < n; i += 2 {
			k := simpleTypeToStr(vals[i])
			m[k] = vals[i+1]
		}
		var err error
		d, err = toon.Marshal(m)
		if err != nil {
			Logf("Event('%s'): toon.Marshal() failed with '%s'\n", name, err)
			return
		}
	}
	eventsLog.Write(marshalEventLine(name, time.Now(), d))
	if onEvent != nil {
		onEvent(name, m)
	}
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}

func pickFirst(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[0])
}

// BestRemoteAddress picks the most accurate IP address from client request
// needed because of proxies
func BestRemoteAddress(r *http.Request) string {
	h := r.Header
	for _, val := range []string{h.Get("CF-Connecting-IP"), h.Get("X-Real-Ip"), h.Get("X-Forwarded-For")} {
		if val != "" {
			return pickFirst(val)
		}
	}
	// RemoteAddr is ip:port, we only want ip
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}

func appendRequestValues(r *http.Request, vals []any) []any {
	if r == nil {
		return vals
	}
	vals = append(vals, "ip", BestRemoteAddress(r))
	if ua := r.UserAgent(); ua != "" {
		vals = append(vals, "ua", limitString(ua, 128))
	}
	return vals
}

func EventFromRequest(r *http.Request, name string, vals ...any) {
	vals = appendRequestValues(r, vals)
	Event(name, vals...)
}

func ErrorEventFromRequest(r *http.Request, err error, name string, vals ...any) {
	vals = appendRequestValues(r, vals)
	vals = append(vals, "error", err.Error())
	Event(name, vals...)
}

func limitString(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
