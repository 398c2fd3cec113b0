package main

import "github.com/oshokin/anchor-watch/cmd/anchor-server/cmd"

func main() {
	cmd.Execute()
}
