package main

import (
	"os"

	"github.com/kirillm/agent-arena/cmd/arena/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
