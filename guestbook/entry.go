package guestbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// how posted_at is written. ISO 8601 with microseconds and utc offset
	timestampFormat = "2006-01-02T15:04:05.000000-07:00"
	// python's datetime.isoformat() of a naive datetime
	// fractional seconds are optional when parsing
	timestampFormatNoZone = "2006-01-02T15:04:05"
)

type Entry struct {
	Author   string
	Comment  string
	PostedAt time.Time
}

// entryJSON is Entry as stored on disk
type entryJSON struct {
	Author   string `json:"author"`
	Comment  string `json:"comment"`
	PostedAt string `json:"posted_at"`
}

// truncate to the precision we store so that the time we return
// from Append() is the same as the one we later read back
func timestampNow() time.Time {
	return time.Now().Truncate(time.Microsecond)
}

func formatTimestamp(t time.Time) string {
	return t.Format(timestampFormat)
}

// parseTimestamp accepts what we write, any RFC 3339 time and
// timestamps without utc offset, which are in local time
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Local(), nil
	}
	t, err := time.ParseInLocation(timestampFormatNoZone, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid posted_at '%s'", s)
	}
	return t, nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	v := entryJSON{
		Author:   e.Author,
		Comment:  e.Comment,
		PostedAt: formatTimestamp(e.PostedAt),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// comments are more readable with < > & not escaped
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (e *Entry) UnmarshalJSON(d []byte) error {
	var v entryJSON
	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}
	t, err := parseTimestamp(v.PostedAt)
	if err != nil {
		return err
	}
	e.Author = v.Author
	e.Comment = v.Comment
	e.PostedAt = t
	return nil
}
