package proof

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// AddrHashSize is the size of a TON account address hash in bytes.
const AddrHashSize = 32

// Address is a parsed raw-form TON address (workchain:hash).
type Address struct {
	Workchain int32
	Hash      [AddrHashSize]byte
}

// ParseRawAddress parses a raw-form address string such as
// "0:3f5c...".  Friendly (base64) forms are not accepted here; the
// account provider supplies raw form.
func ParseRawAddress(raw string) (Address, error) {
	var addr Address

	wc, hashHex, found := strings.Cut(raw, ":")
	if !found {
		return addr, fmt.Errorf("malformed raw address %q: missing workchain separator", raw)
	}

	workchain, err := strconv.ParseInt(wc, 10, 32)
	if err != nil {
		return addr, fmt.Errorf("malformed raw address %q: %w", raw, err)
	}

	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return addr, fmt.Errorf("malformed raw address %q: %w", raw, err)
	}
	if len(hash) != AddrHashSize {
		return addr, fmt.Errorf("malformed raw address %q: hash is %d bytes, want %d", raw, len(hash), AddrHashSize)
	}

	addr.Workchain = int32(workchain)
	copy(addr.Hash[:], hash)
	return addr, nil
}

// String renders the address back to raw form.
func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}
