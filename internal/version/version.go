package version

// Version is the semantic version of this build. Release builds override
// it at link time with -ldflags "-X .../internal/version.Version=...".
var Version = "0.1.0-dev"
