package main

import (
	"fmt"
	"os"

	"github.com/sigscope/sigscope/cmd"
	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/logger"
)

func main() {
	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)

	err := rootCmd.Execute()
	_ = logger.Global().Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
