package rpc

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Host runs a bridge plugin process and exposes it as a Bridge.
type Host struct {
	client *plugin.Client
	bridge Bridge
}

// Launch starts the plugin binary at path, searched for in ./bin, . and
// $PATH when path has no separator, and dispenses its bridge. args are
// passed to the binary.
func Launch(path string, logger hclog.Logger, args ...string) (*Host, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	binaryPath, err := findPluginBinary(path)
	if err != nil {
		return nil, err
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &BridgePlugin{Logger: logger},
		},
		Cmd:              exec.Command(binaryPath, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           logger.Named("plugin"),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to bridge plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense bridge: %w", err)
	}

	b, ok := raw.(Bridge)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin dispensed %T, not a bridge", raw)
	}
	return &Host{client: client, bridge: b}, nil
}

// Bridge is the dispensed plugin bridge.
func (h *Host) Bridge() Bridge {
	return h.bridge
}

// Kill stops the plugin process.
func (h *Host) Kill() {
	h.client.Kill()
}

// findPluginBinary resolves a plugin name or path to an executable.
func findPluginBinary(name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if !isExecutable(name) {
			return "", fmt.Errorf("plugin binary %q is not executable", name)
		}
		return filepath.Abs(name)
	}

	searchPaths := []string{"./bin", "."}
	if path := os.Getenv("PATH"); path != "" {
		searchPaths = append(searchPaths, filepath.SplitList(path)...)
	}
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("plugin binary %q not found in search paths", name)
}

// isExecutable checks if a file exists and is executable
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && (info.Mode().Perm()&0111) != 0
}
