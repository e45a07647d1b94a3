package main

import (
	"github.com/robotalks/oilink/pkg/cli/sh"
	"github.com/robotalks/oilink/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
