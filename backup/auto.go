package backup

import (
	"context"
	"sync"
	"time"

	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/u"
)

// UploadTimeout limits a single upload by AutoBackup
var UploadTimeout = 2 * time.Minute

type FileUploader interface {
	UploadFile(ctx context.Context, localPath string) (string, error)
}

// AutoBackup uploads a file delay after the first change since the
// last upload. Changes within that window result in a single upload.
type AutoBackup struct {
	uploader  FileUploader
	debouncer *u.Debouncer

	mu   sync.Mutex
	path string
}

func NewAutoBackup(uploader FileUploader, delay time.Duration) *AutoBackup {
	b := &AutoBackup{
		uploader: uploader,
	}
	b.debouncer = u.NewDebouncer(delay, b.upload)
	return b
}

func (b *AutoBackup) upload() {
	b.mu.Lock()
	path := b.path
	b.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
	defer cancel()
	_, err := b.uploader.UploadFile(ctx, path)
	log.IfErrf(err, "backup: uploading '%s' failed with '%s'\n", path, err)
}

// OnWrite can be used as guestbook.Store.OnWrite
func (b *AutoBackup) OnWrite(path string) {
	b.mu.Lock()
	b.path = path
	b.mu.Unlock()
	b.debouncer.Trigger()
}

// Flush uploads right away if an upload is pending.
// Call before exiting.
func (b *AutoBackup) Flush() bool {
	return b.debouncer.Flush()
}
