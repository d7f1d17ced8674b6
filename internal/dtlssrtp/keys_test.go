package dtlssrtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitKeyingMaterialOrdering(t *testing.T) {
	clientKey := bytesOf(masterKeyLen, 0x01)
	serverKey := bytesOf(masterKeyLen, 0x02)
	clientSalt := bytesOf(masterSaltLen, 0x03)
	serverSalt := bytesOf(masterSaltLen, 0x04)

	material := concat(clientKey, serverKey, clientSalt, serverSalt)

	clientKeys, err := splitKeyingMaterial(material, true)
	require.NoError(t, err)
	assert.Equal(t, clientKey, clientKeys.LocalMasterKey)
	assert.Equal(t, clientSalt, clientKeys.LocalMasterSalt)
	assert.Equal(t, serverKey, clientKeys.RemoteMasterKey)
	assert.Equal(t, serverSalt, clientKeys.RemoteMasterSalt)

	serverKeys, err := splitKeyingMaterial(material, false)
	require.NoError(t, err)
	assert.Equal(t, serverKey, serverKeys.LocalMasterKey)
	assert.Equal(t, serverSalt, serverKeys.LocalMasterSalt)
	assert.Equal(t, clientKey, serverKeys.RemoteMasterKey)
	assert.Equal(t, clientSalt, serverKeys.RemoteMasterSalt)
}

func TestSplitKeyingMaterialTooShort(t *testing.T) {
	_, err := splitKeyingMaterial(make([]byte, exportedKeyingMaterialLen-1), true)
	assert.ErrorIs(t, err, errShortKeyingMaterial)
}

func TestParseFingerprintRoundTrip(t *testing.T) {
	fp, err := ParseFingerprint("sha-256 AB:CD:EF")
	require.NoError(t, err)
	assert.Equal(t, "sha-256", fp.Algorithm)
	assert.Equal(t, "AB:CD:EF", fp.Value)
	assert.Equal(t, "sha-256 AB:CD:EF", fp.String())
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
