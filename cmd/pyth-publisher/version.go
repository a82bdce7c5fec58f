package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/StrathCole/pyth-publisher/pkg/sources"
	"github.com/StrathCole/pyth-publisher/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pyth-publisher version %s\n", version.Version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("Sources: %v\n", sources.List())
	},
}
