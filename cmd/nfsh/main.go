// Command nfsh is the raw NFSv3/MOUNTv3 operator client described in
// spec.md §1: an interactive shell for probing NFS server trust
// assumptions outside the host kernel's NFS client. Grounded on the
// teacher's cobra-rooted CLI entry point (cmd/dfsctl/commands/root.go):
// flags bound into internal/config, a root RunE that hands off
// to the long-running part of the program instead of a one-shot
// subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/nfsh/internal/config"
	"github.com/marmos91/nfsh/internal/localfs"
	"github.com/marmos91/nfsh/internal/logger"
	"github.com/marmos91/nfsh/internal/metrics"
	"github.com/marmos91/nfsh/internal/session"
	"github.com/marmos91/nfsh/internal/shell"

	"github.com/spf13/afero"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		quiet        bool
		lineOriented bool
		debugAddr    string
		configPath   string
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "nfsh [host]",
		Short: "Raw NFSv3/MOUNTv3 operator client",
		Long:  "nfsh probes an NFS server's trust assumptions directly over ONC RPC, bypassing the host kernel's NFS client.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, runOptions{
				quiet:        quiet,
				lineOriented: lineOriented,
				debugAddr:    debugAddr,
				configPath:   configPath,
				logLevel:     logLevel,
				logFormat:    logFormat,
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "v", false, "disable verbose banners")
	cmd.Flags().BoolVarP(&lineOriented, "line-oriented", "i", false, "disable interactive prompting (line-oriented stdin mode)")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "address for the optional /metrics debug server (off by default)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to an nfshrc config file (default ~/.nfshrc.yaml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	return cmd
}

type runOptions struct {
	quiet        bool
	lineOriented bool
	debugAddr    string
	configPath   string
	logLevel     string
	logFormat    string
}

func run(cmd *cobra.Command, args []string, opts runOptions) error {
	logger.InitWithWriter(os.Stderr, opts.logLevel, opts.logFormat, true)

	cfg, err := config.LoadWithConfigPath(cmd.Flags(), opts.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.SetFormat(cfg.LogFormat)

	sess := session.New()
	sess.UID = cfg.DefaultUID
	sess.GID = cfg.DefaultGID
	sess.TransferSize = cfg.DefaultTransferSize
	sess.Timeout = cfg.Timeout
	sess.Verbose = !opts.quiet
	sess.Interactive = !opts.lineOriented

	debugAddr := opts.debugAddr
	if debugAddr == "" {
		debugAddr = cfg.DebugAddr
	}
	if debugAddr != "" {
		recorder := metrics.New(prometheus.NewRegistry())
		sess.Metrics = recorder
		go metrics.Serve(debugAddr, metrics.NewDebugServer(recorder))
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	local := localfs.New(afero.NewOsFs(), cwd)

	sh, err := shell.New(sess, local, os.Stdout, os.Stderr, "nfsh> ", sess.Interactive)
	if err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	defer sh.Close()

	if len(args) == 1 {
		if err := sess.Host(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	return sh.Run()
}
