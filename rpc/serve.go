package rpc

import (
	"errors"
	"net/rpc"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	bridge "github.com/schemabounce/waterfall-bridge"
	"github.com/schemabounce/waterfall-bridge/helpers/logging"
)

// Serve serves the bridge as an RPC plugin. It blocks until the host
// disconnects.
func Serve(config *ServeConfig) error {
	if config == nil || config.Bridge == nil {
		return errors.New("rpc: ServeConfig with a Bridge is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewLogger("plugin")
	}

	logger.Info("starting bridge plugin",
		"version", bridge.Version,
		"protocol", bridge.ProtocolVersion,
	)

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &BridgePlugin{Impl: config.Bridge, Logger: logger},
		},
		Logger: logger,
	})
	return nil
}

// BridgePlugin implements the plugin.Plugin interface
type BridgePlugin struct {
	// Impl is only set in the plugin process.
	Impl   Bridge
	Logger hclog.Logger
}

// Server returns the RPC server for this plugin
func (p *BridgePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &BridgeServer{Bridge: p.Impl, Logger: p.logger()}, nil
}

// Client returns the RPC client for this plugin
func (p *BridgePlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &BridgeClient{Client: c, Logger: p.logger()}, nil
}

func (p *BridgePlugin) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}
