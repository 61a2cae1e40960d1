package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gobeaver/nodefs/paths"
	"github.com/gobeaver/nodefs/vfs"
)

// locate opens the protocol root of url and returns it with the path of
// url below that root.
func (a *app) locate(url string) (*vfs.Node, string, error) {
	target, err := vfs.Open(url, vfs.WithRegistry(a.registry))
	if err != nil {
		return nil, "", err
	}
	root, err := a.registry.Root(target.Protocol(), paths.Separator)
	if err != nil {
		return nil, "", err
	}
	return root, paths.Relative(target.Path()), nil
}

// node resolves url to a node linked to its protocol root.
func (a *app) node(ctx context.Context, url string) (*vfs.Node, error) {
	root, rel, err := a.locate(url)
	if err != nil {
		return nil, err
	}
	return root.Get(ctx, rel)
}

func argOr(args []string, fallback string) string {
	if len(args) > 0 {
		return args[0]
	}
	return fallback
}

func printNodes(w io.Writer, nodes []*vfs.Node) {
	for _, n := range nodes {
		if n.Kind() == vfs.KindDirectory {
			fmt.Fprintln(w, n.DirPath())
			continue
		}
		fmt.Fprintln(w, n.Path())
	}
}

func newLsCmd(a *app) *cobra.Command {
	var (
		recursive  bool
		filesOnly  bool
		dirsOnly   bool
		hideHidden bool
		composer   bool
		pattern    string
	)
	cmd := &cobra.Command{
		Use:   "ls [url]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.node(ctx, argOr(args, "/"))
			if err != nil {
				return err
			}
			if hideHidden {
				dir.AddFilter(vfs.HiddenFiles(), false)
			}
			if composer {
				dir.AddFilter(vfs.Composer(), false)
			}
			if pattern != "" {
				g, err := vfs.Glob(pattern)
				if err != nil {
					return fmt.Errorf("invalid glob %q: %w", pattern, err)
				}
				dir.AddFilter(g, false)
			}

			var nodes []*vfs.Node
			switch {
			case filesOnly:
				nodes, err = dir.ListFiles(ctx, recursive)
			case dirsOnly:
				nodes, err = dir.ListDirectories(ctx, recursive)
			default:
				nodes, err = dir.ListContents(ctx, recursive)
			}
			if err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&filesOnly, "files", false, "list files only")
	cmd.Flags().BoolVar(&dirsOnly, "dirs", false, "list directories only")
	cmd.Flags().BoolVar(&hideHidden, "hide-hidden", false, "skip dot files and dot directories")
	cmd.Flags().BoolVar(&composer, "composer", false, "skip vendor trees and composer manifests")
	cmd.Flags().StringVar(&pattern, "glob", "", "only entries whose path below the listed directory matches")
	cmd.MarkFlagsMutuallyExclusive("files", "dirs")
	return cmd
}

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [url]",
		Short: "Print a directory tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.node(cmd.Context(), argOr(args, "/"))
			if err != nil {
				return err
			}
			return dir.PrintTree(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <url>",
		Short: "Print file content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := a.node(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rc, err := file.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <url> [local-file]",
		Short: "Write a file from a local file or stdin",
		Long:  "put creates or replaces the file at url. Missing parent directories are created.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content []byte
				err     error
			)
			if len(args) == 2 {
				content, err = os.ReadFile(args[1])
			} else {
				content, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			root, rel, err := a.locate(args[0])
			if err != nil {
				return err
			}
			file, err := root.CreateFile(cmd.Context(), rel, content)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file.URL())
			return nil
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <url>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, rel, err := a.locate(args[0])
			if err != nil {
				return err
			}
			dir, err := root.Mkdir(cmd.Context(), rel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir.URL())
			return nil
		},
	}
}

var errRootDelete = errors.New("refusing to delete a protocol root")

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <url>",
		Short: "Delete a file or a directory with its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.node(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n.IsRoot() {
				return errRootDelete
			}
			_, err = n.Delete(cmd.Context())
			return err
		},
	}
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <url> <target-dir>",
		Short: "Move a file or directory into another directory",
		Long:  "mv keeps the name of the moved entry. The target may use another protocol.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transfer(cmd, args, (*vfs.Node).Move)
		},
	}
}

func newCpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <url> <target-dir>",
		Short: "Copy a file or directory into another directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transfer(cmd, args, (*vfs.Node).Copy)
		},
	}
}

func (a *app) transfer(cmd *cobra.Command, args []string, op func(*vfs.Node, context.Context, *vfs.Node) (*vfs.Node, error)) error {
	ctx := cmd.Context()
	src, err := a.node(ctx, args[0])
	if err != nil {
		return err
	}
	target, err := a.node(ctx, args[1])
	if err != nil {
		return err
	}
	dst, err := op(src, ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dst.URL())
	return nil
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <url> <new-name>",
		Short: "Rename a file or directory in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.node(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renamed, err := n.Rename(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renamed.URL())
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var content, filesOnly, dirsOnly bool
	cmd := &cobra.Command{
		Use:   "search <url> <word>",
		Short: "Find entries by name or file content, ignoring case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.node(ctx, args[0])
			if err != nil {
				return err
			}

			var nodes []*vfs.Node
			switch {
			case content:
				nodes, err = dir.SearchContent(ctx, args[1])
			case filesOnly:
				nodes, err = dir.SearchFiles(ctx, args[1])
			case dirsOnly:
				nodes, err = dir.SearchDirectories(ctx, args[1])
			default:
				nodes, err = dir.Search(ctx, args[1])
			}
			if err != nil {
				return err
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, "match file content instead of names")
	cmd.Flags().BoolVar(&filesOnly, "files", false, "match file names only")
	cmd.Flags().BoolVar(&dirsOnly, "dirs", false, "match directory names only")
	cmd.MarkFlagsMutuallyExclusive("content", "files", "dirs")
	return cmd
}
