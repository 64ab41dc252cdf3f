package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/hzhu212/data-monitor/cli"
)

func main() {
	parser := flags.NewNamedParser("datamonitor", flags.Default)
	_, _ = parser.AddCommand("run", "load, validate and schedule jobs", "", &cli.RunCommand{})
	_, _ = parser.AddCommand("validate", "validate jobs without scheduling them", "", &cli.ValidateCommand{})

	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		var flagErr *flags.Error
		if errors.As(err, &flagErr) {
			parser.WriteHelp(os.Stdout)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
