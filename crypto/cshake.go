package crypto

import "golang.org/x/crypto/sha3"

// CShake256 is cSHAKE256 with an empty function name and a fixed
// customization string, squeezed to 32 bytes.
type CShake256 struct {
	Customization string
}

func (CShake256) Name() string { return NameCShake256 }

func (p CShake256) Sum256(parts ...[]byte) [32]byte {
	h := sha3.NewCShake256(nil, []byte(p.Customization))
	for _, part := range parts {
		_, _ = h.Write(part)
	}
	var out [32]byte
	_, _ = h.Read(out[:])
	return out
}
