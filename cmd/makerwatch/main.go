package main

import "makerwatch/internal/cli"

func main() {
	cli.Execute()
}
