package main

import (
	"os"

	"github.com/scan-io-git/ot-collector/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
