package bootstrap

import "time"

// Version is set at build time with -ldflags "-X ...bootstrap.Version=...".
var Version = "dev"

const auditTimeout = 5 * time.Second
