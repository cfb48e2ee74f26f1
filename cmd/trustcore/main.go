package main

import "github.com/ratewise/trustcore/internal/cli"

func main() {
	cli.Execute()
}
