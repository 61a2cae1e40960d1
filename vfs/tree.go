package vfs

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// PrintTree writes n and everything below it to w, depth first:
//
//	project
//	   ---src
//	      ---main.go
//	   ---README.md
//
// Active filters apply at every level.
func (n *Node) PrintTree(ctx context.Context, w io.Writer) error {
	name := n.Name()
	if name == "" {
		name = n.URL()
	}
	if _, err := fmt.Fprintln(w, name); err != nil {
		return err
	}
	return n.printChildren(ctx, w, 1)
}

func (n *Node) printChildren(ctx context.Context, w io.Writer, depth int) error {
	children, err := n.ListContents(ctx, false)
	if err != nil {
		return err
	}
	indent := strings.Repeat("   ", depth) + "---"
	for _, c := range children {
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, c.Name()); err != nil {
			return err
		}
		if c.kind == KindDirectory {
			if err := c.printChildren(ctx, w, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
