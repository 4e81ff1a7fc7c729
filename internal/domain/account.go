// Package domain defines core data structures shared by the dashboard backend.
package domain

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxPrincipalLength is the maximum length of a principal in bytes.
	MaxPrincipalLength = 29
	// SubaccountLength is the fixed length of a ledger subaccount.
	SubaccountLength = 32

	accountIDDomainSeparator = "\x0Aaccount-id"
)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidAccount is returned for identities no ledger can resolve.
var ErrInvalidAccount = errors.New("invalid account")

// Principal root identity shared by all ledgers.
type Principal []byte

// ParsePrincipal decodes the textual form (dash separated base32 groups
// prefixed with a CRC32 checksum).
func ParsePrincipal(text string) (Principal, error) {
	if text == "" {
		return nil, errors.Wrap(ErrInvalidAccount, "empty principal")
	}

	raw := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	decoded, err := principalEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAccount, "decode principal %q: %v", text, err)
	}
	if len(decoded) < 4 {
		return nil, errors.Wrapf(ErrInvalidAccount, "principal %q is too short", text)
	}

	p := Principal(decoded[4:])
	if len(p) > MaxPrincipalLength {
		return nil, errors.Wrapf(ErrInvalidAccount, "principal %q is longer than %d bytes", text, MaxPrincipalLength)
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(p) {
		return nil, errors.Wrapf(ErrInvalidAccount, "principal %q checksum mismatch", text)
	}
	// reject non-canonical spellings, e.g. wrong grouping
	if p.String() != strings.ToLower(text) {
		return nil, errors.Wrapf(ErrInvalidAccount, "principal %q is not in canonical form", text)
	}

	return p, nil
}

// String returns the canonical textual form.
func (p Principal) String() string {
	buf := make([]byte, 4, 4+len(p))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(p))
	buf = append(buf, p...)

	encoded := strings.ToLower(principalEncoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(encoded); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(encoded))
		b.WriteString(encoded[i:end])
	}
	return b.String()
}

// Account identity as understood by the ledgers: a principal and an
// optional subaccount. A nil subaccount means the default (all zeros).
type Account struct {
	Owner      Principal
	Subaccount []byte
}

// ParseAccount parses a principal text and an optional hex subaccount.
func ParseAccount(principal, subaccountHex string) (Account, error) {
	owner, err := ParsePrincipal(principal)
	if err != nil {
		return Account{}, err
	}

	acc := Account{Owner: owner}
	if subaccountHex != "" {
		sub, err := hex.DecodeString(subaccountHex)
		if err != nil {
			return Account{}, errors.Wrapf(ErrInvalidAccount, "decode subaccount: %v", err)
		}
		acc.Subaccount = sub
	}

	return acc, acc.Validate()
}

// Validate checks the account can be resolved by a ledger.
func (a Account) Validate() error {
	if len(a.Owner) == 0 {
		return errors.Wrap(ErrInvalidAccount, "owner is required")
	}
	if len(a.Owner) > MaxPrincipalLength {
		return errors.Wrapf(ErrInvalidAccount, "owner is longer than %d bytes", MaxPrincipalLength)
	}
	if a.Subaccount != nil && len(a.Subaccount) != SubaccountLength {
		return errors.Wrapf(ErrInvalidAccount, "subaccount must be %d bytes, got %d", SubaccountLength, len(a.Subaccount))
	}
	return nil
}

// String returns the principal text, suffixed with the subaccount when set.
func (a Account) String() string {
	if a.Subaccount == nil {
		return a.Owner.String()
	}
	return a.Owner.String() + "." + hex.EncodeToString(a.Subaccount)
}

// SubaccountOrDefault returns the 32 byte subaccount, zero filled when unset.
func (a Account) SubaccountOrDefault() []byte {
	if a.Subaccount != nil {
		return a.Subaccount
	}
	return make([]byte, SubaccountLength)
}

// AccountIdentifier derives the legacy ledger key:
// crc32(h) || h, where h = sha224("\x0Aaccount-id" || owner || subaccount).
func (a Account) AccountIdentifier() string {
	h := sha256.New224()
	h.Write([]byte(accountIDDomainSeparator))
	h.Write(a.Owner)
	h.Write(a.SubaccountOrDefault())
	sum := h.Sum(nil)

	out := make([]byte, 4, 4+len(sum))
	binary.BigEndian.PutUint32(out, crc32.ChecksumIEEE(sum))
	out = append(out, sum...)

	return hex.EncodeToString(out)
}
