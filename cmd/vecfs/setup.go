//go:build cgo

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
)

// addSetupCmd adds the command that installs local embedding dependencies.
func addSetupCmd(root *cobra.Command) {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install local embedding dependencies",
		Long: `Download the ONNX runtime library required by the fastembed
embedding provider. The library is installed to:
  ~/.config/vecfs/lib/

If ONNX_PATH environment variable is set, that path takes precedence.

Examples:
  # Download the ONNX runtime
  vecfs setup

  # Force re-download even if already installed
  vecfs setup --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if path := embeddings.GetONNXLibraryPath(); path != "" {
					cmd.Printf("ONNX runtime already installed at: %s\n", path)
					cmd.Println("Use --force to re-download.")
					return nil
				}
			}

			cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.DefaultONNXRuntimeVersion)
			if err := embeddings.DownloadONNXRuntime(cmd.Context(), ""); err != nil {
				return fmt.Errorf("failed to download ONNX runtime: %w", err)
			}

			path := embeddings.GetONNXLibraryPath()
			if path == "" {
				return fmt.Errorf("download completed but library not found")
			}
			cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force re-download even if ONNX runtime exists")
	root.AddCommand(cmd)
}
