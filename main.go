package main

import "github.com/nextlevelbuilder/taskhive/cmd"

func main() {
	cmd.Execute()
}
