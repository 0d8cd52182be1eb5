package guestbook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestParseTimestamp(t *testing.T) {
	local := func(year int, month time.Month, day, hour, min, sec, usec int) time.Time {
		return time.Date(year, month, day, hour, min, sec, usec*1000, time.Local)
	}
	tests := []struct {
		s   string
		exp time.Time
	}{
		// written by datetime.now().isoformat()
		{"2024-05-01T10:11:02.123456", local(2024, 5, 1, 10, 11, 2, 123456)},
		// isoformat() omits microseconds when they are 0
		{"2024-05-01T10:11:02", local(2024, 5, 1, 10, 11, 2, 0)},
		{"2024-05-01T10:11:02.123456+02:00", time.Date(2024, 5, 1, 8, 11, 2, 123456000, time.UTC)},
		{"2024-05-01T08:11:02Z", time.Date(2024, 5, 1, 8, 11, 2, 0, time.UTC)},
	}
	for _, test := range tests {
		got, err := parseTimestamp(test.s)
		assert.NoError(t, err, "%s", test.s)
		assert.True(t, test.exp.Equal(got), "%s: expected %s, got %s", test.s, test.exp, got)
	}

	for _, s := range []string{"", "yesterday", "2024-05-01", "2024-13-01T10:11:02", "1714550000"} {
		_, err := parseTimestamp(s)
		assert.Error(t, err, "%s", s)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	now := timestampNow()
	s := formatTimestamp(now)
	got, err := parseTimestamp(s)
	assert.NoError(t, err)
	assert.True(t, now.Equal(got), "expected %s, got %s", now, got)

	// nanoseconds are lost, which is why timestampNow() truncates
	withNano := time.Date(2024, 5, 1, 10, 11, 2, 123456789, time.Local)
	got, err = parseTimestamp(formatTimestamp(withNano))
	assert.NoError(t, err)
	assert.True(t, withNano.Truncate(time.Microsecond).Equal(got))
}

func TestEntryJSON(t *testing.T) {
	posted := time.Date(2024, 5, 1, 10, 11, 2, 123456000, time.FixedZone("", 2*3600))
	e := Entry{
		Author:   "Alice",
		Comment:  "Hello!\n<b>hi</b> & bye",
		PostedAt: posted,
	}
	// json.Marshal(e) would escape < > &, the store writes with an encoder that doesn't
	d, err := e.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `{"author":"Alice","comment":"Hello!\n<b>hi</b> & bye","posted_at":"2024-05-01T10:11:02.123456+02:00"}`, string(d))

	var e2 Entry
	err = json.Unmarshal(d, &e2)
	assert.NoError(t, err)
	assert.Equal(t, e.Author, e2.Author)
	assert.Equal(t, e.Comment, e2.Comment)
	assert.True(t, e.PostedAt.Equal(e2.PostedAt))

	// posted_at is required
	err = json.Unmarshal([]byte(`{"author":"Alice","comment":"Hello!"}`), &e2)
	assert.Error(t, err)
	err = json.Unmarshal([]byte(`{"author":"Alice","comment":"Hello!","posted_at":5}`), &e2)
	assert.Error(t, err)
}
