// Command sapl-go is a thin evaluation harness around the PDP library:
// validate a configuration, evaluate a single subscription against it,
// or print build version information. It is not a server — no
// listener, no hot-reload, no admin surface — those are out of scope
// for a PDP library.
package main

import "github.com/heutelbeck/sapl-go/cmd/sapl-go/cmd"

func main() {
	cmd.Execute()
}
