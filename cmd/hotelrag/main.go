// Package main is the entry point for the hotelrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/hotelrag/cmd/hotelrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
