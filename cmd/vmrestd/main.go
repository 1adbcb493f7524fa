package main

import (
	"os"
)

func main() {
	a := newApp()
	root := newRootCmd(a)
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
