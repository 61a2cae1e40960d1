package cli

import (
	"errors"
	"fmt"
	"maps"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobeaver/nodefs"
)

// Build-time variables set via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <url>",
		Short: "Show metadata of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			url := args[0]
			info, err := a.registry.Stat(ctx, url)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "url:\t%s\n", url)
			if info.IsDir {
				fmt.Fprintf(tw, "kind:\tdirectory\n")
			} else {
				mime, err := a.registry.MimeType(ctx, url)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "kind:\tfile\n")
				fmt.Fprintf(tw, "size:\t%d\n", info.Size)
				fmt.Fprintf(tw, "type:\t%s\n", mime)
			}
			if !info.ModTime.IsZero() {
				fmt.Fprintf(tw, "modified:\t%s\n", info.ModTime.UTC().Format(time.RFC3339))
			}
			visibility, err := a.registry.Visibility(ctx, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "visibility:\t%s\n", visibility)
			for _, k := range slices.Sorted(maps.Keys(info.Metadata)) {
				fmt.Fprintf(tw, "meta %s:\t%s\n", k, info.Metadata[k])
			}
			return tw.Flush()
		},
	}
}

var errChecksumMismatch = errors.New("checksum mismatch")

func newChecksumCmd(a *app) *cobra.Command {
	var algorithm, expected string
	cmd := &cobra.Command{
		Use:   "checksum <url>",
		Short: "Print or verify the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg := nodefs.ChecksumAlgorithm(algorithm)
			if !slices.Contains(nodefs.ChecksumAlgorithms(), alg) {
				return fmt.Errorf("unknown algorithm %q", algorithm)
			}
			file, err := a.node(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sum, err := file.Checksum(cmd.Context(), alg)
			if err != nil {
				return err
			}
			if expected != "" && !strings.EqualFold(expected, sum) {
				return fmt.Errorf("%w: %s has %s %s", errChecksumMismatch, file.URL(), alg, sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, file.URL())
			return nil
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", string(nodefs.ChecksumMD5), "md5, sha1, sha256, sha512, crc32 or xxhash")
	cmd.Flags().StringVar(&expected, "verify", "", "fail unless the checksum equals this hex value")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch <url> <pattern>...",
		Short: "Report changes below a directory that match glob patterns",
		Long: `watch prints one line per change notification until interrupted, or
until --count notifications were seen. A change matching any of the
patterns counts once. Backends that cannot watch never report a change.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := a.node(ctx, args[0])
			if err != nil {
				return err
			}
			patterns := args[1:]

			changes := make(chan struct{}, 1)
			stop := nodefs.OnChange(func() (nodefs.ChangeToken, error) {
				tokens := make([]nodefs.ChangeToken, 0, len(patterns))
				for _, p := range patterns {
					token, err := dir.Watch(ctx, p)
					if err != nil {
						return nil, err
					}
					tokens = append(tokens, token)
				}
				return nodefs.NewCompositeChangeToken(tokens...), nil
			}, func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			defer stop()

			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case <-changes:
					fmt.Fprintf(cmd.OutOrStdout(), "changed %s\n", strings.Join(patterns, " "))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many notifications (0 waits forever)")
	return cmd
}

func newProtocolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "List registered protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := a.registry.DefaultProtocol()
			for _, p := range a.registry.Protocols() {
				if p == def {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (default)\n", p)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// no registry needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			v, c := resolveVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "nodefs %s (%s) %s/%s\n", v, c, runtime.GOOS, runtime.GOARCH)
		},
	}
}

// resolveVersion prefers ldflags values and falls back to module build
// info for go install builds.
func resolveVersion() (string, string) {
	v, c := version, commit
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, c
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	if c == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				c = s.Value[:7]
			}
		}
	}
	return v, c
}
