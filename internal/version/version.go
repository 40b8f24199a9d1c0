package version

// Version is the current version of the roomlink binary.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/ChattingLord/roomlink/internal/version.Version=v1.0.0'"
var Version = "dev"
