package discovery

// UDP discovery encryption keys, shared by every Tuya device on a LAN
// regardless of which specific device key it was paired with.
var (
	// udpKey33 is the v3.1/v3.3 UDP discovery key.
	udpKey33 = []byte("yG9shRKIBrIBUjc3")
	// udpKey34 is the v3.4 UDP discovery key: md5("yGAdlopoPVldABfn").
	udpKey34 = []byte{
		0x6c, 0x1e, 0xc8, 0xe2, 0xbb, 0x9b, 0xb5, 0x9a,
		0xb5, 0x0b, 0x0d, 0xaf, 0x64, 0x9b, 0x41, 0x0a,
	}
	// udpKey35 is the same key as udpKey34; v3.5 differs only in framing.
	udpKey35 = udpKey34
)

// candidateKeys is the bruteforce order parsePacket tries when a
// broadcast's key isn't known ahead of time: most-recent protocol
// version first.
var candidateKeys = [][]byte{udpKey35, udpKey34, udpKey33}
