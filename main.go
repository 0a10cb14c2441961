package main

import (
	"os"

	"github.com/Iridescent115/qcfwup/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
