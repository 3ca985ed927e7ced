// Command adt-console is the operator console for ADT governed agent
// sessions.
package main

import "github.com/adt-framework/adt-console/internal/cli"

func main() {
	cli.Execute()
}
