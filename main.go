package main

import (
	"github.com/treeshare/treeshare/cmd"
	"github.com/treeshare/treeshare/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
