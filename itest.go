// Package itest is a golden-comparison integration harness for the
// bassovac variant caller.
package itest

// Version is the harness version reported by `itest version` and the MCP server.
const Version = "0.3.0"
