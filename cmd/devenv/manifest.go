package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sjawhar/devenv/internal/backup"
	"github.com/sjawhar/devenv/internal/manifest"
)

var (
	manifestRootDir        string
	manifestNoIncludeFiles bool
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Discover --root-dir locally and print the resulting manifest as JSON",
	Long: `manifest walks --root-dir for jj repositories, loose configuration files,
and symlinks the same way backup does, builds an in-memory manifest, and
prints it to standard output. It never touches the object store — this
is a local preview of what a backup from --root-dir would capture.`,
	Run: runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestRootDir, "root-dir", ".", "root directory to discover")
	manifestCmd.Flags().BoolVar(&manifestNoIncludeFiles, "no-include-files", false, "omit loose files and symlinks from the manifest")
}

func runManifest(cmd *cobra.Command, args []string) {
	ctx, cancel, err := withDeadline(cmd.Context())
	if err != nil {
		fail("devenv manifest: %v", err)
	}
	defer cancel()

	m, _, err := backup.DiscoverManifest(ctx, backup.DiscoverOptions{
		RootDir:      manifestRootDir,
		IncludeFiles: !manifestNoIncludeFiles,
	})
	if err != nil {
		fail("devenv manifest: %v", err)
	}

	var buf bytes.Buffer
	if err := manifest.Encode(&buf, m); err != nil {
		fail("devenv manifest: %v", err)
	}
	fmt.Println(buf.String())
}
