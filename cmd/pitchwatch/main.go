package main

import "github.com/ogulcanaydogan/pitchwatch/internal/cli"

func main() {
	cli.Execute()
}
