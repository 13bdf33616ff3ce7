package main

import "github.com/pitchline/pulse/internal/daemon"

func main() {
	daemon.Main()
}
