package pluginrpc

import (
	"net/rpc"

	"github.com/ava-labs/fedimint/mint"
)

// combineArgs bundles Combine's two arguments into a single gob-encodable
// value, since net/rpc methods take exactly one argument.
type combineArgs struct {
	Req    mint.SignRequest
	Shares []mint.PartialSigResponse
}

// combineReply carries Combine's three return values, including the
// fallible *CombineError flattened to a string so gob doesn't need to know
// how to encode an error interface.
type combineReply struct {
	Sig      *mint.BlindSignature
	Faulty   mint.FaultReport
	ErrorMsg string
}

// signerRPCServer runs inside the plugin subprocess and satisfies the
// net/rpc "one exported method, two arguments, error return" shape for
// every Signer operation.
type signerRPCServer struct {
	impl Signer
}

func (s *signerRPCServer) Issue(req mint.SignRequest, resp *mint.PartialSigResponse) error {
	out, err := s.impl.Issue(req)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *signerRPCServer) Combine(args combineArgs, reply *combineReply) error {
	sig, faulty, combineErr := s.impl.Combine(args.Req, args.Shares)
	reply.Sig = sig
	reply.Faulty = faulty
	if combineErr != nil {
		reply.ErrorMsg = combineErr.Error()
	}
	return nil
}

func (s *signerRPCServer) Threshold(_ struct{}, reply *int) error {
	*reply = s.impl.Threshold()
	return nil
}

// signerRPCClient runs in the host process and implements Signer by
// forwarding every call across the RPC connection.
type signerRPCClient struct {
	client *rpc.Client
}

var _ Signer = (*signerRPCClient)(nil)

func (c *signerRPCClient) Issue(req mint.SignRequest) (mint.PartialSigResponse, error) {
	var resp mint.PartialSigResponse
	if err := c.client.Call("Plugin.Issue", req, &resp); err != nil {
		return mint.PartialSigResponse{}, err
	}
	return resp, nil
}

func (c *signerRPCClient) Combine(req mint.SignRequest, shares []mint.PartialSigResponse) (*mint.BlindSignature, mint.FaultReport, *mint.CombineError) {
	var reply combineReply
	if err := c.client.Call("Plugin.Combine", combineArgs{Req: req, Shares: shares}, &reply); err != nil {
		return nil, mint.FaultReport{}, &mint.CombineError{Reason: err.Error()}
	}
	var combineErr *mint.CombineError
	if reply.ErrorMsg != "" {
		combineErr = &mint.CombineError{Reason: reply.ErrorMsg}
	}
	return reply.Sig, reply.Faulty, combineErr
}

func (c *signerRPCClient) Threshold() int {
	var reply int
	if err := c.client.Call("Plugin.Threshold", struct{}{}, &reply); err != nil {
		return 0
	}
	return reply
}
