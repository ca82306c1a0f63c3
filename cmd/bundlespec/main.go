package main

import (
	"os"
)

func main() {
	os.Exit(run())
}

// run executes the CLI with os.Args and returns the process exit code.
func run() int {
	a := newApp(os.Stdout, os.Stderr)
	root := newRootCommand(a)
	root.SetArgs(os.Args[1:])
	err := root.Execute()
	if err != nil {
		a.printError(err)
	}
	return exitCode(err)
}
