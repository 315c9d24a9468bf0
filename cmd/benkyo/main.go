package main

import "github.com/duonganh203/benkyo/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
