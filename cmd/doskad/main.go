package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/doska/internal/daemon"
	"github.com/matheus3301/doska/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	debugFlag := flag.Bool("debug", false, "log debug entries")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Instance: name, Debug: *debugFlag}),
		fx.NopLogger,
	)
	app.Run()
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
