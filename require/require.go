// Package require is like github.com/alecthomas/assert except
// a failed check stops the test
package require

import "github.com/alecthomas/assert"

// TestingT is an interface wrapper around *testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// failRecorder passes errors to t and remembers if there were any.
// assert functions don't report whether they failed.
type failRecorder struct {
	t      TestingT
	failed bool
}

func (r *failRecorder) Errorf(format string, args ...interface{}) {
	r.failed = true
	r.t.Errorf(format, args...)
}

func (r *failRecorder) FailNow() {
	r.failed = true
	r.t.FailNow()
}

func check(t TestingT, fn func(t assert.TestingT)) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	r := &failRecorder{t: t}
	fn(r)
	if r.failed {
		t.FailNow()
	}
}

// NoError asserts that err is nil.
//
//	entries, err := readEntries(path)
//	require.NoError(t, err)
func NoError(t TestingT, err error, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.NoError(t, err, msgAndArgs...)
	})
}

// Error asserts that err is not nil
func Error(t TestingT, err error, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.Error(t, err, msgAndArgs...)
	})
}

// Equal asserts that two objects are equal.
//
//	require.Equal(t, "Alice", entries[0].Author)
func Equal(t TestingT, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.Equal(t, expected, actual, msgAndArgs...)
	})
}

// Len asserts that the specified object has specific length.
// Len also fails if the object has a type that len() not accept.
//
//	require.Len(t, entries, 2)
func Len(t TestingT, object interface{}, length int, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.Len(t, object, length, msgAndArgs...)
	})
}

// True asserts that the specified value is true
func True(t TestingT, value bool, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.True(t, value, msgAndArgs...)
	})
}

// NotNil asserts that the specified object is not nil
func NotNil(t TestingT, object interface{}, msgAndArgs ...interface{}) {
	check(t, func(t assert.TestingT) {
		assert.NotNil(t, object, msgAndArgs...)
	})
}
