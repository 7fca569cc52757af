package version

// Version holds the gateway version. It is overridden at build time via:
//   -ldflags "-X github.com/arencloud/bucketgw/internal/version.Version=vX.Y.Z"
var Version = "dev"

// Name is reported by the version endpoint and the startup log line.
const Name = "bucketgw"
