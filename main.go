package main

import "github.com/leadfoundry/zapagent/cmd"

func main() {
	cmd.Execute()
}
