package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/gocovr/cmd/gocovr/app"
)

func main() {
	if err := app.NewGocovrCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
