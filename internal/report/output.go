package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dashRuns   = regexp.MustCompile(`-{2,}`)
	validExt   = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

	pathSeparators = strings.NewReplacer("/", "-", `\`, "-")
)

const maxNameLen = 80

// SafeName turns a user supplied report name into a file name: accents are
// folded, anything outside [A-Za-z0-9._-] becomes a dash and the name is
// capped. The extension is kept (lower-cased) and defaults to ".pdf".
func SafeName(name string) string {
	name = pathSeparators.Replace(strings.TrimSpace(name))
	stem, ext := name, ".pdf"
	if e := filepath.Ext(name); validExt.MatchString(e) {
		stem, ext = strings.TrimSuffix(name, e), strings.ToLower(e)
	}

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), stem)
	if err != nil {
		folded = stem
	}
	s := unsafeName.ReplaceAllString(folded, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if len(s) > maxNameLen {
		s = strings.TrimRight(s[:maxNameLen], "-.")
	}
	if s == "" {
		s = "report"
	}
	return s + ext
}

// WriteAtomic writes data to dir/SafeName(name) through a temporary file in
// the same directory, so readers never see a partial file. It returns the
// final path.
func WriteAtomic(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	final := filepath.Join(dir, SafeName(name))

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		cleanup()
		return "", fmt.Errorf("rename to %s: %w", final, err)
	}

	// Best effort: persist the directory entry.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return final, nil
}
