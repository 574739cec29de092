package main

import "github.com/omriShneor/calsync/internal/cli"

func main() {
	cli.Execute()
}
