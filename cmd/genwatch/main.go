package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags at build time

var (
	configPath  string
	debugFrames string
	plainOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "genwatch",
	Short: "Watch streaming code-generation sessions",
	Long: `genwatch starts code-generation sessions on a streaming backend and
follows them live: files as they are written, progress, the build and the
preview link. Sessions can be cancelled at any point and revisited later
from the history.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/genwatch/config.toml)")
	rootCmd.PersistentFlags().StringVar(&debugFrames, "debug-frames", "", "Append every raw stream frame (JSONL) to this file")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Print line-oriented output even on a terminal")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	// Stray log output would corrupt the TUI.
	log.SetOutput(io.Discard)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genwatch: %v\n", err)
		os.Exit(1)
	}
}
