package vfs

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// IsFile matches files.
func IsFile() Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		if n.resolved {
			return n.kind == KindFile, nil
		}
		return n.IsFile(ctx)
	})
}

// IsDirectory matches directories.
func IsDirectory() Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		if n.resolved {
			return n.kind == KindDirectory, nil
		}
		return n.IsDirectory(ctx)
	})
}

// Search matches nodes whose name contains word, ignoring case.
func Search(word string) Filter {
	word = strings.ToLower(word)
	return FilterFunc(func(_ context.Context, n *Node) (bool, error) {
		return strings.Contains(strings.ToLower(n.Name()), word), nil
	})
}

// SearchContent matches files whose content contains word, ignoring case.
// Every candidate file is read in full.
func SearchContent(word string) Filter {
	needle := bytes.ToLower([]byte(word))
	isFile := IsFile()
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		ok, err := isFile.Match(ctx, n)
		if err != nil || !ok {
			return false, err
		}
		data, err := n.Read(ctx)
		if err != nil {
			return false, err
		}
		return bytes.Contains(bytes.ToLower(data), needle), nil
	})
}

// Composer excludes Composer dependency trees and manifests.
func Composer() Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		p := relativePath(ctx, n)
		return !strings.Contains(p, "vendor") &&
			!strings.Contains(p, "composer.json") &&
			!strings.Contains(p, "composer.lock"), nil
	})
}

var hiddenPattern = regexp.MustCompile(`(^|/)\.[^/.]`)

// HiddenFiles excludes dot files and everything below dot directories.
// Like every filter it sees the path below the directory being listed, so
// listing a dot directory itself still returns its content.
func HiddenFiles() Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		return !hiddenPattern.MatchString(relativePath(ctx, n)), nil
	})
}

// Glob matches the path below the listing root against pattern. "*"
// stays within one segment, "**" crosses directories.
//
//	vfs.Glob("*.txt")          // text files directly in the listed directory
//	vfs.Glob("**/*.go")        // Go files at any depth below it
//	vfs.Glob("{src,test}/**")  // everything below src and test
func Glob(pattern string) (Filter, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		return g.Match(relativePath(ctx, n)), nil
	}), nil
}

// MaxDepth matches nodes at most depth levels below the listing root.
// Depth 1 is the immediate children.
func MaxDepth(depth int) Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		p := relativePath(ctx, n)
		if p == "" {
			return true, nil
		}
		return strings.Count(p, "/")+1 <= depth, nil
	})
}

// And matches only if all filters match.
func And(filters ...Filter) Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		return accept(ctx, filters, n)
	})
}

// Or matches if any filter matches.
func Or(filters ...Filter) Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		for _, f := range filters {
			ok, err := f.Match(ctx, n)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	})
}

// Not inverts a filter.
func Not(f Filter) Filter {
	return FilterFunc(func(ctx context.Context, n *Node) (bool, error) {
		ok, err := f.Match(ctx, n)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}
