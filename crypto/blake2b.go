package crypto

import "github.com/dchest/blake2b"

// CKBBlake2b is BLAKE2b-256 personalised with "ckb-default-hash".
type CKBBlake2b struct{}

var ckbBlake2bConfig = &blake2b.Config{
	Size:   32,
	Person: []byte(DefaultPersonalization),
}

func (CKBBlake2b) Name() string { return NameCKBBlake2b }

func (CKBBlake2b) Sum256(parts ...[]byte) [32]byte {
	h, err := blake2b.New(ckbBlake2bConfig)
	if err != nil {
		// Static config; only a programming error reaches this.
		panic("crypto: blake2b init: " + err.Error())
	}
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
