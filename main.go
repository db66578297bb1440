package main

import (
	"os"

	"github.com/hildam/rag-flow-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
