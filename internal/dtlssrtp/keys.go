package dtlssrtp

import "github.com/pion/srtp/v3"

// AES-128-CM-HMAC-SHA1-80 key/salt lengths, per [RFC3711 §8.2].
const (
	masterKeyLen  = 16
	masterSaltLen = 14
)

// exportedKeyingMaterialLen is the number of bytes ExportKeyingMaterial must
// produce: client write key, server write key, client write salt, server
// write salt, concatenated in that order per [RFC5764 §4.2].
const exportedKeyingMaterialLen = 2*masterKeyLen + 2*masterSaltLen

// splitKeyingMaterial slices the RFC5705 exporter output into client/server
// write key and salt, then arranges them into local/remote SessionKeys
// according to which side of the handshake we played. This is done by hand,
// rather than via a library helper, so the derivation is independently
// checkable against the raw exporter bytes.
func splitKeyingMaterial(material []byte, isClient bool) (srtp.SessionKeys, error) {
	if len(material) < exportedKeyingMaterialLen {
		return srtp.SessionKeys{}, errShortKeyingMaterial
	}

	offset := 0
	clientKey := material[offset : offset+masterKeyLen]
	offset += masterKeyLen
	serverKey := material[offset : offset+masterKeyLen]
	offset += masterKeyLen
	clientSalt := material[offset : offset+masterSaltLen]
	offset += masterSaltLen
	serverSalt := material[offset : offset+masterSaltLen]

	if isClient {
		return srtp.SessionKeys{
			LocalMasterKey:   clone(clientKey),
			LocalMasterSalt:  clone(clientSalt),
			RemoteMasterKey:  clone(serverKey),
			RemoteMasterSalt: clone(serverSalt),
		}, nil
	}
	return srtp.SessionKeys{
		LocalMasterKey:   clone(serverKey),
		LocalMasterSalt:  clone(serverSalt),
		RemoteMasterKey:  clone(clientKey),
		RemoteMasterSalt: clone(clientSalt),
	}, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
