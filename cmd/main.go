package main

import (
	"github.com/propmon-agent/cmd/agent"
)

func main() {
	agent.Execute()
}
