package main

import (
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
)

// newShellCmd reproduces main.c's interactive loop ("VMREST_TEST_CLI
// > ", fgets, strtok, dispatch on argv[0]") as a go-prompt REPL: each
// line is split into arguments and handed to the same cobra command
// tree used for one-shot invocations, so `shell` and direct CLI use
// share identical parsing and state.
func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Drop into an interactive VMREST_TEST_CLI-style shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			runShell(a)
			return nil
		},
	}
}

func runShell(a *app) {
	p := prompt.New(
		func(line string) { execLine(a, line) },
		shellCompleter,
		prompt.OptionPrefix("VMREST_TEST_CLI > "),
		prompt.OptionTitle("vmrestd"),
	)
	p.Run()
}

func execLine(a *app, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "exit":
		fmt.Println("Exiting CLI .....")
		if a.logger != nil {
			a.logger.Close()
		}
		os.Exit(0)
	case "help", "--help":
		newRootCmd(a).Help()
		return
	}

	root := newRootCmd(a)
	root.SetArgs(fields)
	if err := root.Execute(); err != nil {
		// The sub-command already printed an ERROR: line; nothing
		// further to report here.
		return
	}
}

func shellCompleter(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "config", Description: "Provide configuration params to REST engine"},
		{Text: "restengine", Description: "Initialize/shutdown the REST engine"},
		{Text: "endpoint", Description: "Register/deregister the REST point"},
		{Text: "server", Description: "Start/stop the server"},
		{Text: "help", Description: "See this message"},
		{Text: "exit", Description: "Exit this test client"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}
