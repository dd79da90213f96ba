package main

import "github.com/jweetan/newsvet/internal/cli"

func main() {
	cli.Execute()
}
