// Package main provides the entry point for the comiccache service and CLI.
package main

import (
	"github.com/illmade-knight/go-comiccache/internal/cli"
)

func main() {
	cli.Execute()
}
