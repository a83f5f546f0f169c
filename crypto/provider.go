package crypto

import (
	"fmt"
	"sort"
	"strings"
)

// HashProvider is the narrow hashing interface used by consensus code.
// Sum256 over several parts equals Sum256 over their concatenation.
type HashProvider interface {
	Name() string
	Sum256(parts ...[]byte) [32]byte
}

const (
	NameCKBBlake2b = "ckb-blake2b"
	NameBlake3     = "blake3"
	NameCShake256  = "cshake256"
)

// DefaultPersonalization is the domain tag mixed into every ledger hash.
const DefaultPersonalization = "ckb-default-hash"

var providers = map[string]HashProvider{
	NameCKBBlake2b: CKBBlake2b{},
	NameBlake3:     Blake3DeriveKey{Context: DefaultPersonalization},
	NameCShake256:  CShake256{Customization: DefaultPersonalization},
}

// Default returns the provider used when nothing else is configured.
func Default() HashProvider {
	return CKBBlake2b{}
}

func ProviderByName(name string) (HashProvider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown hash provider %q (known: %s)", name, strings.Join(ProviderNames(), ", "))
	}
	return p, nil
}

// ProviderNames lists the registered provider names in sorted order.
func ProviderNames() []string {
	out := make([]string, 0, len(providers))
	for name := range providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
