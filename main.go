package main

import "fastfare/internal/cli"

func main() {
	cli.Execute()
}
