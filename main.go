package main

import "github.com/notargets/gotpfa/cmd"

func main() {
	cmd.Execute()
}
