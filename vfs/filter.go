package vfs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gobeaver/nodefs/paths"
)

// Filter decides whether a node appears in a listing.
//
// Filters are composable:
//
//	f := vfs.And(vfs.IsFile(), vfs.Not(vfs.HiddenFiles()))
//	idx := dir.AddFilter(f, true)
//	defer dir.RemoveFilter(idx)
type Filter interface {
	Match(ctx context.Context, n *Node) (bool, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx context.Context, n *Node) (bool, error)

// Match calls f.
func (f FilterFunc) Match(ctx context.Context, n *Node) (bool, error) {
	return f(ctx, n)
}

// filterSeq hands out filter indices for one tree of nodes. Indices are
// never reused.
type filterSeq struct {
	next int
}

func (s *filterSeq) take() int {
	i := s.next
	s.next++
	return i
}

type filterSet map[int]Filter

// AddFilter adds f to this node's filters and returns its index. With
// recursive set, f also applies to listings of every node derived from
// this one.
func (n *Node) AddFilter(f Filter, recursive bool) int {
	idx := n.seq.take()
	n.filters[idx] = f
	if recursive {
		n.recursive[idx] = f
	}
	return idx
}

// RemoveFilter removes the filter at index. Other indices are unchanged.
func (n *Node) RemoveFilter(index int) error {
	_, adhoc := n.filters[index]
	_, recursive := n.recursive[index]
	if !adhoc && !recursive {
		return fmt.Errorf("%w: %d", ErrFilterNotFound, index)
	}
	delete(n.filters, index)
	delete(n.recursive, index)
	return nil
}

// Filters returns the indices of this node's filters in ascending order.
func (n *Node) Filters() []int {
	return slices.Sorted(maps.Keys(n.filters))
}

// activeFilters returns this node's filters and the recursive filters of
// its ancestors, in index order.
func (n *Node) activeFilters() []Filter {
	merged := make(filterSet, len(n.filters))
	maps.Copy(merged, n.filters)
	for p := n.parent; p != nil; p = p.parent {
		maps.Copy(merged, p.recursive)
	}

	active := make([]Filter, 0, len(merged))
	for _, idx := range slices.Sorted(maps.Keys(merged)) {
		active = append(active, merged[idx])
	}
	return active
}

func accept(ctx context.Context, filters []Filter, candidate *Node) (bool, error) {
	for _, f := range filters {
		ok, err := f.Match(ctx, candidate)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type listingRootKey struct{}

func withListingRoot(ctx context.Context, n *Node) context.Context {
	return context.WithValue(ctx, listingRootKey{}, n)
}

// ListingRoot returns the directory whose listing is being filtered. It is
// set on the context passed to Filter.Match.
func ListingRoot(ctx context.Context) (*Node, bool) {
	n, ok := ctx.Value(listingRootKey{}).(*Node)
	return n, ok
}

// relativePath returns the path of n below the listing root, without a
// leading separator. Outside a listing it is the path below the protocol
// root.
func relativePath(ctx context.Context, n *Node) string {
	if root, ok := ListingRoot(ctx); ok && paths.IsWithin(n.path, root.path) {
		return strings.TrimLeft(strings.TrimPrefix(n.path, root.path), "/")
	}
	return paths.Relative(n.path)
}
