package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/logging"
	"github.com/gobeaver/nodefs/vfs"
)

// app carries state shared by every command of one invocation.
type app struct {
	registry  *vfs.Registry
	logLevel  string
	mountFile string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "nodefs",
		Short: "Browse and edit files across storage backends",
		Long: `nodefs addresses files as protocol:///path URLs. Bare paths use the
"file" protocol, backed by the driver named in BEAVER_NODEFS_DRIVER.

Further protocols come from a YAML mount table given by --mounts or
BEAVER_NODEFS_MOUNT_FILE. A .env file in the working directory is loaded
before the environment is read.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides BEAVER_NODEFS_LOG_LEVEL")
	root.PersistentFlags().StringVar(&a.mountFile, "mounts", "", "YAML mount table; overrides BEAVER_NODEFS_MOUNT_FILE")

	root.AddCommand(
		newLsCmd(a),
		newTreeCmd(a),
		newCatCmd(a),
		newPutCmd(a),
		newMkdirCmd(a),
		newRmCmd(a),
		newMvCmd(a),
		newCpCmd(a),
		newRenameCmd(a),
		newSearchCmd(a),
		newStatCmd(a),
		newChecksumCmd(a),
		newWatchCmd(a),
		newProtocolsCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(&app{}).ExecuteContext(ctx)
}

// setup loads .env and the environment config, then initializes logging
// and the registry. A registry set beforehand is kept.
func (a *app) setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	cfg, err := nodefs.GetConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := a.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logging.Init(level, cmd.ErrOrStderr())

	if a.registry != nil {
		return nil
	}
	mountFile := a.mountFile
	if mountFile == "" {
		mountFile = cfg.MountFile
	}
	a.registry, err = buildRegistry(cfg, mountFile)
	return err
}
