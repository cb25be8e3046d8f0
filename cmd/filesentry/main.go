// filesentry — host-resident file activity security monitor.
package main

import "github.com/ppiankov/filesentry/internal/cli"

func main() {
	cli.Execute()
}
