package main

import "github.com/pitchline/pulse/internal/cli"

func main() {
	cli.Main()
}
