package sigscheme

import (
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	b := make([]byte, 32)
	_, err := rand.Read(b)
	require.NoError(t, err)
	priv := secp256k1.PrivKeyFromBytes(b)
	return priv
}

func TestVerifyAcceptsValidSignatures(t *testing.T) {
	k1, k2 := genKey(t), genKey(t)
	message := []byte("fedimint transaction body")

	sig, err := Sign([]*secp256k1.PrivateKey{k1, k2}, message)
	require.NoError(t, err)

	keys := [][]byte{k1.PubKey().SerializeCompressed(), k2.PubKey().SerializeCompressed()}
	assert.True(t, ECDSAConcat{}.Verify(keys, message, sig))
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	k1 := genKey(t)
	sig, err := Sign([]*secp256k1.PrivateKey{k1}, []byte("original"))
	require.NoError(t, err)

	keys := [][]byte{k1.PubKey().SerializeCompressed()}
	assert.False(t, ECDSAConcat{}.Verify(keys, []byte("tampered"), sig))
}

func TestVerifyRejectsWrongKeyOrder(t *testing.T) {
	k1, k2 := genKey(t), genKey(t)
	message := []byte("fedimint transaction body")
	sig, err := Sign([]*secp256k1.PrivateKey{k1, k2}, message)
	require.NoError(t, err)

	keys := [][]byte{k2.PubKey().SerializeCompressed(), k1.PubKey().SerializeCompressed()}
	assert.False(t, ECDSAConcat{}.Verify(keys, message, sig))
}

func TestVerifyRejectsTruncatedSignature(t *testing.T) {
	k1, k2 := genKey(t), genKey(t)
	message := []byte("fedimint transaction body")
	sig, err := Sign([]*secp256k1.PrivateKey{k1, k2}, message)
	require.NoError(t, err)

	keys := [][]byte{k1.PubKey().SerializeCompressed(), k2.PubKey().SerializeCompressed()}
	assert.False(t, ECDSAConcat{}.Verify(keys, message, sig[:len(sig)-5]))
}

func TestVerifyRejectsNoKeys(t *testing.T) {
	assert.False(t, ECDSAConcat{}.Verify(nil, []byte("m"), []byte("sig")))
}
