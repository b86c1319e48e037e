package main

import (
	"github.com/instabidslabs/instabids-cloud/internal/cli"
)

func main() {
	cli.Execute()
}
