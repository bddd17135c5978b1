package main

import "github.com/lugia19/claude-counter/cmd"

func main() {
	cmd.Execute()
}
