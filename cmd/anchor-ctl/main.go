package main

import "github.com/oshokin/anchor-watch/cmd/anchor-ctl/cmd"

func main() {
	cmd.Execute()
}
