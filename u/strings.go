package u

import (
	"os"
	"strings"
)

// NormalizeNewlines changes CRLF (Windows) and CR (Mac) to LF (Unix)
func NormalizeNewlines(d []byte) []byte {
	d = append([]byte{}, d...)
	wi := 0
	n := len(d)
	for i := 0; i < n; i++ {
		c := d[i]
		// 13 is CR
		if c != 13 {
			d[wi] = c
			wi++
			continue
		}
		d[wi] = 10
		wi++
		if i < n-1 && d[i+1] == 10 {
			// this was CRLF, so skip the LF
			i++
		}
	}
	return d[:wi]
}

func AppendNewline(s *string) string {
	if !strings.HasSuffix(*s, "\n") {
		*s = *s + "\n"
	}
	return *s
}

func CollapseMultipleNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	prev := ""
	for prev != s {
		prev = s
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// AppendOrReplaceInText puts toAppend between two delim lines at the end of orig.
// If orig already has a delimited block, it's replaced.
func AppendOrReplaceInText(orig string, toAppend string, delim string) string {
	AppendNewline(&toAppend)
	AppendNewline(&delim)
	content := "\n\n" + delim + toAppend + delim
	if strings.Contains(orig, content) {
		return CollapseMultipleNewlines(orig)
	}
	start := strings.Index(orig, delim)
	if start < 0 {
		return CollapseMultipleNewlines(orig + content)
	}
	end := strings.Index(orig[start+1:], delim)
	PanicIf(end == -1, "didn't find end delim")
	end += start + 1
	orig = orig[:start] + "\n\n" + orig[end+len(delim):]
	res := AppendNewline(&orig) + content
	return CollapseMultipleNewlines(res)
}

// AppendOrReplaceInFileMust returns true if the file was changed
func AppendOrReplaceInFileMust(path string, toAppend string, delim string) bool {
	st, err := os.Lstat(path)
	Must(err)
	orig, err := os.ReadFile(path)
	Must(err)
	newContent := AppendOrReplaceInText(string(orig), toAppend, delim)
	if newContent == string(orig) {
		return false
	}
	Must(os.WriteFile(path, []byte(newContent), st.Mode().Perm()))
	return true
}

func ExpandTildeInPath(s string) string {
	if strings.HasPrefix(s, "~") {
		dir, err := os.UserHomeDir()
		Must(err)
		return dir + s[1:]
	}
	return s
}

// ParseEnvMust parses .env style content: KEY=value lines,
// empty lines and lines starting with # are skipped
func ParseEnvMust(d []byte) map[string]string {
	s := string(NormalizeNewlines(d))
	m := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		PanicIf(!ok, "invalid line '%s' in .env\n", line)
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		m[key] = val
	}
	return m
}
