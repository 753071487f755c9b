// procctl runs external commands under a process controller: it collects
// their output, enforces timeouts, and shows them in a live viewer.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
