// Package main provides the leapshard CLI.
package main

import (
	"github.com/leapstack-labs/leapshard/internal/cli"
)

func main() {
	cli.Execute()
}
