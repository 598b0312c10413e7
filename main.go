package main

import (
	"ves-rate-watch/internal/cli"
)

func main() {
	cli.Execute()
}
