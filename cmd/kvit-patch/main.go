package main

import (
	"os"

	"github.com/kvit-s/kvit-patch/cmd/kvit-patch/cmd"
)

// Version info set by ldflags at build time
var (
	version    = "dev"
	commitHash = "dev"
	commitDate = "unknown"
	buildDate  = "unknown"
)

func main() {
	os.Exit(cmd.Execute(cmd.BuildInfo{
		Version:    version,
		CommitHash: commitHash,
		CommitDate: commitDate,
		BuildDate:  buildDate,
	}))
}
