package main

import "github.com/nextlevelbuilder/lineproto-gateway/cmd"

func main() {
	cmd.Execute()
}
