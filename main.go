package main

import "github.com/nextlevelbuilder/memhub/cmd"

func main() {
	cmd.Execute()
}
