package main

import "github.com/sora-grayscale/splitvault/cmd/splitvault/cmd"

func main() {
	cmd.Execute()
}
