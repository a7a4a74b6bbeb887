//go:build !cgo

package main

import "github.com/spf13/cobra"

// addSetupCmd is a no-op without cgo; the fastembed provider is unavailable.
func addSetupCmd(root *cobra.Command) {}
