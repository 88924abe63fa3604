package main

import "github.com/LittleBoy9/peerbeam/internal/cli"

func main() {
	cli.Execute()
}
