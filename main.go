package main

import (
	"fmt"
	"os"

	"github.com/redditpulse/scraper/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(3)
		}
	}()
	os.Exit(cmd.Execute())
}
