package main

import (
	"os"

	"github.com/cagmero/ARGUS/cmd/argus/commands"
)

func main() {
	os.Exit(commands.Execute())
}
