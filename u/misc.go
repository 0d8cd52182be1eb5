package u

import (
	"fmt"
	"mime"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FormatSize formats a number in a human-readable form e.g. 1.24 kB
func FormatSize(n int64) string {
	sizes := []int64{1024 * 1024 * 1024, 1024 * 1024, 1024}
	suffixes := []string{"GB", "MB", "kB"}
	for i, size := range sizes {
		if n >= size {
			s := fmt.Sprintf("%.2f", float64(n)/float64(size))
			return strings.TrimSuffix(s, ".00") + " " + suffixes[i]
		}
	}
	return fmt.Sprintf("%d bytes", n)
}

// FormatDuration formats duration in a more human friendly way
// than time.Duration.String() i.e. "1.23 ms" instead of "1.234567ms"
func FormatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "µs") {
		// no fractions for µs
		before, _, found := strings.Cut(s, ".")
		if found {
			return before + " µs"
		}
		return strings.ReplaceAll(s, "µs", " µs")
	}
	if strings.HasSuffix(s, "ms") {
		before, after, found := strings.Cut(s, ".")
		// 2 for "ms" and 2+ for fraction
		if found && len(after) > 4 {
			return before + "." + after[:2] + " ms"
		}
		return strings.ReplaceAll(s, "ms", " ms")
	}
	return s
}

// on Windows mime.TypeByExtension() consults the registry first
// which can have bad content types, so we hard-code the ones we serve
var mimeTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".ico":  "image/x-icon",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".png":  "image/png",
	".svg":  "image/svg+xml",
}

func MimeTypeFromFileName(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ct := mimeTypes[ext]
	if ct == "" {
		ct = mime.TypeByExtension(ext)
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ct
}

// GetGitHashDateMust returns short hash and date of the current git checkin
func GetGitHashDateMust() (string, string) {
	// git log --pretty=format:"%h %ad %s" --date=short -1
	cmd := exec.Command("git", "log", "-1", `--pretty=format:%h %ad %s`, "--date=short")
	out, err := cmd.Output()
	PanicIf(err != nil, "git log failed")
	s := strings.TrimSpace(string(out))
	parts := strings.SplitN(s, " ", 3)
	PanicIf(len(parts) != 3, "expected 3 parts in '%s'", s)
	return parts[0], parts[1]
}
