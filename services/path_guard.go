package services

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"filemanager/storage"
	"filemanager/utils"
)

// maxDecodePasses bounds percent-decoding. Input still changing after this
// many passes is rejected instead of decoded further.
const maxDecodePasses = 3

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// PathSpec is a validated path. Relative is slash separated, relative to
// the storage root, and free of "." and ".." segments. Absolute is the
// backend's address for the same entry.
type PathSpec struct {
	Relative string
	Absolute string
}

// PathGuard validates client supplied paths and names. It does no I/O.
type PathGuard struct {
	maxLength int
	resolve   func(string) string
}

func NewPathGuard(maxLength int, resolve func(string) string) *PathGuard {
	if resolve == nil {
		resolve = func(p string) string { return p }
	}
	return &PathGuard{maxLength: maxLength, resolve: resolve}
}

// Normalize validates raw and returns its canonical form. Segments are
// kept literally; their percent-decoded form (decoded repeatedly, so
// "%252e%252e" is seen as "..") must be a valid name too. Backslashes are
// treated as separators before any segment is inspected.
func (g *PathGuard) Normalize(raw string) (PathSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return PathSpec{}, invalidPath("path is required")
	}
	if g.maxLength > 0 && len(raw) > g.maxLength {
		return PathSpec{}, invalidPath("path exceeds %d bytes", g.maxLength)
	}

	cleaned := strings.ReplaceAll(raw, "\\", "/")
	if strings.HasPrefix(cleaned, "/") || drivePrefix.MatchString(cleaned) {
		return PathSpec{}, invalidPath("absolute paths are not allowed")
	}

	var segments []string
	for _, seg := range strings.Split(cleaned, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return PathSpec{}, invalidPath("parent directory references are not allowed")
		}
		if err := validateSegment(seg); err != nil {
			return PathSpec{}, err
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return PathSpec{}, invalidPath("path is required")
	}

	rel := strings.Join(segments, "/")
	return PathSpec{Relative: rel, Absolute: g.resolve(rel)}, nil
}

// NormalizeOr is Normalize with a fallback for empty input, used where an
// omitted path means "the actor's scope root".
func (g *PathGuard) NormalizeOr(raw string, fallback PathSpec) (PathSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return g.Normalize(raw)
}

// NormalizeName validates a single entry name from a request body or a
// multipart filename. The name is stored exactly as given.
func (g *PathGuard) NormalizeName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", invalidPath("name is required")
	}
	if err := validateSegment(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// Join appends a validated name to dir.
func (g *PathGuard) Join(dir PathSpec, name string) (PathSpec, error) {
	n, err := g.NormalizeName(name)
	if err != nil {
		return PathSpec{}, err
	}
	rel := path.Join(dir.Relative, n)
	if g.maxLength > 0 && len(rel) > g.maxLength {
		return PathSpec{}, invalidPath("path exceeds %d bytes", g.maxLength)
	}
	return PathSpec{Relative: rel, Absolute: g.resolve(rel)}, nil
}

// Root builds the PathSpec of the storage root path itself, which may be
// empty.
func (g *PathGuard) Root(rootPath string) (PathSpec, error) {
	if strings.Trim(rootPath, "/") == "" {
		return PathSpec{Relative: "", Absolute: g.resolve("")}, nil
	}
	return g.Normalize(strings.Trim(rootPath, "/"))
}

// validateSegment checks one literal name and the name it percent-decodes
// to. Storage bookkeeping names are never accepted.
func validateSegment(seg string) error {
	if err := checkName(seg); err != nil {
		return err
	}

	decoded, err := decodeFully(seg)
	if err != nil {
		return err
	}
	if decoded == seg {
		return nil
	}
	if decoded == ".." {
		return invalidPath("parent directory references are not allowed")
	}
	return checkName(decoded)
}

func checkName(name string) error {
	if err := utils.ValidateName(name); err != nil {
		return invalidPath("segment %q: %v", name, err)
	}
	if storage.IsHiddenName(name) {
		return invalidPath("name %q is reserved", name)
	}
	return nil
}

// decodeFully percent-decodes until the input stops changing. A "%" that
// does not start an escape ends decoding; it is an ordinary character.
func decodeFully(raw string) (string, error) {
	s := raw
	for i := 0; ; i++ {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		if i == maxDecodePasses {
			return "", invalidPath("path is encoded too many times")
		}
		s = decoded
	}
	for _, r := range s {
		if r == 0 || unicode.IsControl(r) {
			return "", invalidPath("control characters are not allowed")
		}
	}
	return s, nil
}
