package constraints

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/lunfardo314/easyfl"
	"golang.org/x/crypto/blake2b"
)

// AddressED25519 is the native pay-to-pubkey lock: 32 bytes, the blake2b
// hash of the controlling public key

type AddressED25519 []byte

const (
	addressED25519Name     = "addressED25519"
	addressED25519Template = addressED25519Name + "(0x%s)"
)

const addressED25519Source = `
// $0 - address data, the 32-byte blake2b hash of the public key.
// Spend authorization is checked with 'unlockedWithKeyED25519' over the
// unlock data of the spending transaction
func addressED25519: equal(len8($0), 32)
`

func AddressED25519FromBytes(data []byte) (AddressED25519, error) {
	sym, _, args, err := easyfl.ParseBytecodeOneLevel(data, 1)
	if err != nil {
		return nil, err
	}
	if sym != addressED25519Name {
		return nil, fmt.Errorf("not an AddressED25519")
	}
	addrBin := easyfl.StripDataPrefix(args[0])
	if len(addrBin) != 32 {
		return nil, fmt.Errorf("wrong data length")
	}
	return addrBin, nil
}

func AddressED25519FromPublicKey(pubKey ed25519.PublicKey) AddressED25519 {
	h := blake2b.Sum256(pubKey)
	return h[:]
}

func AddressED25519Null() AddressED25519 {
	return make([]byte, 32)
}

func (a AddressED25519) source() string {
	return fmt.Sprintf(addressED25519Template, hex.EncodeToString(a))
}

func (a AddressED25519) Bytes() []byte {
	return mustBinFromSource(a.source())
}

func (a AddressED25519) AccountID() AccountID {
	return a.Bytes()
}

func (a AddressED25519) UnlockableWith(ctx *SpendContext) bool {
	return unlockedWithKey(a, ctx)
}

func (a AddressED25519) Name() string {
	return addressED25519Name
}

func (a AddressED25519) String() string {
	return a.source()
}

func initAddressED25519Constraint() {
	easyfl.MustExtendMany(addressED25519Source)

	example := AddressED25519Null()
	addrBack, err := AddressED25519FromBytes(example.Bytes())
	easyfl.AssertNoError(err)
	easyfl.Assert(Equal(addrBack, AddressED25519Null()), "inconsistency "+addressED25519Name)

	prefix, err := easyfl.ParseBytecodePrefix(example.Bytes())
	easyfl.AssertNoError(err)

	registerConstraint(addressED25519Name, prefix, func(data []byte) (Constraint, error) {
		return AddressED25519FromBytes(data)
	})
}
