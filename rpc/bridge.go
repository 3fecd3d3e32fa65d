package rpc

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	bridge "github.com/schemabounce/waterfall-bridge"
	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
)

// PluginName is the name the bridge is dispensed under.
const PluginName = "bridge"

// Handshake is shared by the plugin process and its host.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  uint(bridge.ProtocolVersion),
	MagicCookieKey:   "WATERFALL_BRIDGE_PLUGIN",
	MagicCookieValue: "waterfall-bridge",
}

// Bridge is the operation set served over the plugin boundary. The
// credential to forward travels in ctx (waterfall.WithCredential).
type Bridge interface {
	Export(ctx context.Context, opts exporter.Options) (*exporter.Result, error)
	Import(ctx context.Context, opts importer.Options, payload []byte) (*importer.Result, error)
	ImportArtifact(ctx context.Context, opts importer.Options, key string) (*importer.Result, error)
}

// ServeConfig contains configuration for serving the bridge plugin
type ServeConfig struct {
	Bridge Bridge
	Logger hclog.Logger
}
