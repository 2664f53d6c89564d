package main

import "github.com/pairsight/statarb/cmd"

func main() {
	cmd.Execute()
}
