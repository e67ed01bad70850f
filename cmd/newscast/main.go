package main

import (
	"newscast/cmd/cmd"
)

func main() {
	cmd.Execute()
}
