package main

import "github.com/notargets/gocsd/cmd"

func main() {
	cmd.Execute()
}
