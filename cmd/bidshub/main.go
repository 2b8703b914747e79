package main

import (
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/cmd/bidshub/commands"

	// Register storage backends
	_ "github.com/PowerDNS/simpleblob/backends/fs"
	_ "github.com/PowerDNS/simpleblob/backends/memory"
	_ "github.com/PowerDNS/simpleblob/backends/s3"

	// Register dataset builders
	_ "github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets/aomic"
	_ "github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets/arc"
	_ "github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets/isles24"
)

// version is overridden during the build with the go linker
var version = "dev"

func main() {
	commands.SetVersion(version)
	commands.Execute()
}
