package main

import (
	"os"

	"github.com/matthisholleville/authgate/cmd"
	"github.com/matthisholleville/authgate/cmd/serve"
	"github.com/matthisholleville/authgate/cmd/validate"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(serve.NewRunCommand())
	rootCmd.AddCommand(validate.NewValidateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
