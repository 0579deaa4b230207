package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "pkgstrap",
		Short: "Fetch and link project dependencies from git",
		Long:  "A tool to check out the dependencies listed in a manifest from their git repositories, sharing one cached clone per repository across projects, and link them into the project.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.manifestPath, "manifest", "pkgstrap.yaml", "manifest file")
	flags.StringVar(&opts.overridesPath, "overrides", "pkgstrap.override.yaml", "overrides file, ignored when missing")
	flags.StringVar(&opts.stateDir, "state-dir", ".pkgstrap", "directory for the tool's working state")
	flags.StringVar(&opts.depsDir, "deps-dir", "deps", "directory dependencies are linked into")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "shared repository cache (default $PKGSTRAP_CACHE_DIR or the user cache dir)")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Check out and link every dependency",
		Long:  "Fetch each git dependency into the shared cache, check it out in its own worktree and link it into its targets. Local path overrides are linked directly.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(opts, stderr)
			if err != nil {
				return err
			}
			return syncAll(cmd.Context(), p, stderr, opts.verbose)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print dependency state as JSON",
		Long:  "Resolve the manifest and print, for each dependency, its source, the commit checked out in its worktree and whether its targets link to it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(opts, stderr)
			if err != nil {
				return err
			}
			state, err := status(cmd.Context(), p, stderr, opts.verbose)
			if err != nil {
				return err
			}

			if opts.verbose {
				fmt.Fprintf(stderr, "writing JSON output\n")
			}
			encoder := json.NewEncoder(stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(state)
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove dependency links and worktrees",
		Long:  "Remove the symlinks and local worktrees of every dependency. Cached repositories are kept. Failures are reported and the remaining dependencies are still cleaned.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := load(opts, stderr)
			if err != nil {
				return err
			}
			return clean(cmd.Context(), p, stderr, opts.verbose)
		},
	}

	rootCmd.AddCommand(syncCmd, statusCmd, cleanCmd)
	rootCmd.SetArgs(args[1:])
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
