package pluginrpc

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Dial launches the signer plugin binary at path and returns a Signer that
// forwards calls to it, plus the underlying *plugin.Client so the caller
// can Kill the subprocess on shutdown.
func Dial(path string, logLevel hclog.Level) (Signer, *plugin.Client, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "signer-plugin",
		Level: logLevel,
	})

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(path),
		Logger:          logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("pluginrpc: connect to %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense("signer")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("pluginrpc: dispense signer: %w", err)
	}

	signer, ok := raw.(Signer)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("pluginrpc: dispensed value is not a Signer")
	}
	return signer, client, nil
}

// Serve blocks running impl as a signer plugin subprocess; called from the
// plugin binary's main, never from the host process.
func Serve(impl Signer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"signer": &SignerPlugin{Impl: impl},
		},
	})
}
