package guestbook

// Storage is what the web layer needs from a guestbook backend
type Storage interface {
	// List returns all entries, newest first.
	// Read errors are not reported, they result in an empty list.
	List() []Entry
	// Append adds a new entry as the first entry
	Append(author, comment string) error
}

var (
	_ Storage = &Store{}
	_ Storage = &PostgresStore{}
)
