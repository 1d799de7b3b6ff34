package main

import (
	"github.com/fachebot/point-digest/internal/cli"
	"github.com/fachebot/point-digest/internal/logger"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}
