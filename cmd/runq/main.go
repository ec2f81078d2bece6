package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	clientcmd "github.com/rzbill/runq/internal/cmd/client"
)

func main() {
	// A missing .env is fine; anything else is worth surfacing.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}

	rootCmd := clientcmd.NewRoot()
	rootCmd.Long = "runq is a lease-based task queue. This CLI runs the server, submits tasks and runs workers."
	rootCmd.AddCommand(newServerCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
