// Package paths contains the pure string helpers used to address nodes:
// normalization, splitting, protocol joining and URL parsing. Nothing in
// this package performs I/O.
package paths

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator is the only separator used in normalized paths.
	Separator = "/"

	// SchemeSeparator splits a protocol from its path.
	SchemeSeparator = "://"
)

var (
	// ErrPathEscapesRoot is returned when ".." would ascend above the root.
	ErrPathEscapesRoot = errors.New("path escapes root")

	// ErrMalformedURL is returned when a URL has no scheme and no default
	// scheme was supplied.
	ErrMalformedURL = errors.New("malformed url")
)

// Normalize collapses "." and empty segments, resolves ".." against the
// segments already seen and returns a path that starts with "/". A
// protocol-qualified input keeps its scheme: "file://a//b" becomes
// "file:///a/b".
func Normalize(p string) (string, error) {
	if scheme, rest, ok := strings.Cut(p, SchemeSeparator); ok {
		if scheme == "" {
			return "", fmt.Errorf("%w: %q", ErrMalformedURL, p)
		}
		clean, err := normalizePath(rest)
		if err != nil {
			return "", err
		}
		return JoinProtocol(scheme, clean), nil
	}
	return normalizePath(p)
}

func normalizePath(p string) (string, error) {
	segments, err := resolve(p)
	if err != nil {
		return "", err
	}
	return Separator + strings.Join(segments, Separator), nil
}

// Segments returns the normalized, non-empty segments of p.
func Segments(p string) ([]string, error) {
	return resolve(p)
}

func resolve(p string) ([]string, error) {
	p = strings.ReplaceAll(p, `\`, Separator)
	parts := strings.Split(p, Separator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: %q", ErrPathEscapesRoot, p)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, part)
		}
	}
	return out, nil
}

// Join appends elem to base and normalizes the result.
func Join(base string, elem ...string) (string, error) {
	all := append([]string{base}, elem...)
	return Normalize(strings.Join(all, Separator))
}

// Split returns the last non-empty segment of p as name and everything
// before it as parent. An empty parent means the root.
//
//	Split("/a/b/c/") // "/a/b", "c"
//	Split("/a")      // "", "a"
func Split(p string) (parent, name string) {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, Separator), Separator)
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// Base returns the last segment of p, or "" for the root.
func Base(p string) string {
	_, name := Split(p)
	return name
}

// Ext returns the text after the last "." in the base name of p, without
// the dot. A name without a dot has no extension.
func Ext(p string) string {
	name := Base(p)
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// JoinProtocol builds "scheme://p". A path without a leading separator is
// kept as is.
func JoinProtocol(scheme, p string) string {
	return scheme + SchemeSeparator + p
}

// ParseURL splits url into its scheme and path. When url carries no
// scheme, defaultScheme is used; if that is empty too, ErrMalformedURL is
// returned. Query and fragment parts stay in the returned path untouched.
func ParseURL(url, defaultScheme string) (scheme, p string, err error) {
	if s, rest, ok := strings.Cut(url, SchemeSeparator); ok {
		if s == "" {
			return "", "", fmt.Errorf("%w: empty scheme in %q", ErrMalformedURL, url)
		}
		return s, rest, nil
	}
	if defaultScheme == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedURL, url)
	}
	return defaultScheme, url, nil
}

// Trim returns the canonical directory form "/a/b/" used for identity
// comparisons. The root is "/".
func Trim(p string) string {
	p = strings.Trim(p, Separator)
	if p == "" {
		return Separator
	}
	return Separator + p + Separator
}

// Relative strips the leading separator so that p can be handed to a
// backend, whose paths are relative to its own root.
func Relative(p string) string {
	return strings.TrimLeft(p, Separator)
}

// IsWithin reports whether p equals dir or lies below it. Both paths are
// expected in normalized form.
func IsWithin(p, dir string) bool {
	if dir == Separator {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+Separator)
}
