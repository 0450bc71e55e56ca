package main

import "github.com/nextlevelbuilder/picoagent/cmd"

func main() {
	cmd.Execute()
}
