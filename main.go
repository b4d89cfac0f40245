package main

import "github.com/theirongolddev/burnmeter/cmd"

func main() {
	cmd.Execute()
}
