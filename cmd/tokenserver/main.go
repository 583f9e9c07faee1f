package main

import "github.com/syncgate/tokenserver/cmd/tokenserver/cmd"

func main() {
	cmd.Execute()
}
