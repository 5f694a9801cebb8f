package common

// Version is stamped at build time via -ldflags.
var Version = "v0.1.0"
