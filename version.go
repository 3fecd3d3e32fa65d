// Package bridge carries the build identity of the Waterfall import/export
// bridge.
package bridge

import "runtime"

const (
	// Version is the bridge release.
	Version = "v0.1.0"

	// APIVersion is the version of the HTTP surface.
	APIVersion = "v1"

	// ProtocolVersion is the plugin protocol version.
	ProtocolVersion = 1
)

// Info describes the running build.
type Info struct {
	Version         string `json:"version"`
	APIVersion      string `json:"api_version"`
	ProtocolVersion int    `json:"protocol_version"`
	GoVersion       string `json:"go_version"`
}

// GetInfo returns information about the running build.
func GetInfo() *Info {
	return &Info{
		Version:         Version,
		APIVersion:      APIVersion,
		ProtocolVersion: ProtocolVersion,
		GoVersion:       runtime.Version(),
	}
}
