package main

import (
	"github.com/ChattingLord/roomlink/cmd"
	"github.com/ChattingLord/roomlink/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
