package main

import "github.com/harnessgg/blenderbridge/internal/cli"

func main() {
	cli.Execute()
}
