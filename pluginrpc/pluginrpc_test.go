package pluginrpc

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/fedimint/consensus/types"
	"github.com/ava-labs/fedimint/mint"
	"github.com/ava-labs/fedimint/mint/reference"
)

// helperShareEnvVar carries a base64-encoded reference.Mint share to the
// plugin subprocess this test binary re-execs itself as.
const helperShareEnvVar = "FEDIMINT_SIGNER_PLUGIN_TEST_SHARE"

// TestMain lets this test binary double as the signer plugin binary Dial
// launches: the same self-reexec trick os/exec's own test suite uses
// (TestHelperProcess) for tests that need a real child process, since Dial
// expects to exec a standalone plugin executable rather than an in-process
// stub.
func TestMain(m *testing.M) {
	if encoded := os.Getenv(helperShareEnvVar); encoded != "" {
		runHelperSigner(encoded)
		return
	}
	os.Exit(m.Run())
}

func runHelperSigner(encoded string) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		panic(err)
	}
	signer, err := reference.UnmarshalShare(raw)
	if err != nil {
		panic(err)
	}
	Serve(signer)
}

// TestPluginTransparency checks the plugin-transparency property: the same
// sign request produces byte-identical Issue/Combine results whether it runs
// against an in-process reference.Mint or the identical key material
// wrapped behind the go-plugin boundary.
func TestPluginTransparency(t *testing.T) {
	mints, err := reference.GenerateFederation(1, 0, []types.Denomination{10})
	require.NoError(t, err)
	m := mints[0]

	req := mint.SignRequest{
		TxHash:         [32]byte{0xaa, 0xbb},
		OutputIdx:      1,
		TokenIdx:       0,
		Denomination:   10,
		BlindedMessage: []byte("plugin-transparency-blinded-message"),
	}

	wantIssue, err := m.Issue(req)
	require.NoError(t, err)
	wantCombined, wantFault, wantCombineErr := m.Combine(req, []mint.PartialSigResponse{wantIssue})
	require.Nil(t, wantCombineErr)
	require.NotNil(t, wantCombined)

	share, err := m.MarshalShare()
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(helperShareEnvVar, base64.StdEncoding.EncodeToString(share))

	signer, client, err := Dial(exe, hclog.Off)
	require.NoError(t, err)
	defer client.Kill()

	gotIssue, err := signer.Issue(req)
	require.NoError(t, err)
	assert.Equal(t, wantIssue, gotIssue, "Issue must produce the identical share whether in-process or plugin-wrapped")

	gotCombined, gotFault, gotCombineErr := signer.Combine(req, []mint.PartialSigResponse{gotIssue})
	require.Nil(t, gotCombineErr)
	assert.Equal(t, wantFault, gotFault)
	require.NotNil(t, gotCombined)
	assert.Equal(t, wantCombined.Bytes, gotCombined.Bytes, "Combine must reconstruct the identical signature across the plugin boundary")

	assert.Equal(t, m.Threshold(), signer.Threshold())
}
