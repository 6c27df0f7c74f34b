// Command tracefsctl builds and, optionally, installs tracefs hist and
// synthetic-event triggers from the command line.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
