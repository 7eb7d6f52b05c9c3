// Package pluginrpc exposes the mint's threshold-signing operations as an
// optional out-of-process plugin over hashicorp/go-plugin's net/rpc
// transport, mirroring avalanchego's VM-as-subprocess architecture (a
// pluggable collaborator loaded behind a fixed contract, the host process
// talking to it only through gob-encoded RPC calls).
//
// Only Issue/Combine/Threshold cross the boundary: Validate/Spend need the
// shared database.Database and batch.BatchTx the rest of the engine holds
// in-process, which are not meaningful to serialize to a subprocess. Key
// material for Issue/Combine, by contrast, benefits from living in an
// isolated process with no other access to the federation's database.
package pluginrpc

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/ava-labs/fedimint/mint"
)

// Handshake is the shared magic cookie both host and plugin process must
// present; a mismatch refuses the connection outright.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FEDIMINT_SIGNER_PLUGIN",
	MagicCookieValue: "a9c7f3e1-signer",
}

// PluginMap is the set of plugins this host knows how to speak to, keyed by
// the name passed to plugin.ClientConfig/plugin.Serve.
var PluginMap = map[string]plugin.Plugin{
	"signer": &SignerPlugin{},
}

// Signer is the subset of mint.Mint that crosses the process boundary.
type Signer interface {
	Issue(req mint.SignRequest) (mint.PartialSigResponse, error)
	Combine(req mint.SignRequest, shares []mint.PartialSigResponse) (*mint.BlindSignature, mint.FaultReport, *mint.CombineError)
	Threshold() int
}

// SignerPlugin adapts a Signer to go-plugin's net/rpc plugin interface.
type SignerPlugin struct {
	Impl Signer
}

func (p *SignerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &signerRPCServer{impl: p.Impl}, nil
}

func (p *SignerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &signerRPCClient{client: c}, nil
}

var _ plugin.Plugin = (*SignerPlugin)(nil)
