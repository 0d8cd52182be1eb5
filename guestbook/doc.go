// Package guestbook stores guestbook entries.
//
// Store keeps all entries, newest first, as a JSON array in a single file.
// Every List() reads the whole file and every Append() rewrites it.
// A file that is missing or can't be parsed reads as an empty guestbook.
//
//	[
//	  {
//	    "author": "Bob",
//	    "comment": "Hi Alice",
//	    "posted_at": "2024-05-01T10:12:00.000000+02:00"
//	  },
//	  {
//	    "author": "Alice",
//	    "comment": "Hello!",
//	    "posted_at": "2024-05-01T10:11:02.123456+02:00"
//	  }
//	]
//
// PostgresStore provides the same behavior on top of a Postgres table.
package guestbook
