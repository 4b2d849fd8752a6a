package internal

import "fmt"

// Overridden with -ldflags "-X" by the build.
var (
	Version         = "devel"
	GitRevision     = "devel"
	VersionRevision = fmt.Sprintf("%s-%s", Version, GitRevision)
)
