package conductor

// Version is the release version, set at build time with
// -ldflags "-X github.com/aretw0/conductor.Version=...".
var Version = "dev"
