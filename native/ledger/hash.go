package ledger

import (
	"encoding/hex"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// genesisSeed anchors the chain: the first entry's PrevHash is the
// keccak of this label, so an empty ledger still has a well-defined
// head.
var genesisSeed = []byte("cardroom/ledger/genesis/v1")

// GenesisHash returns the chain anchor in hex.
func GenesisHash() string {
	return hex.EncodeToString(ethcrypto.Keccak256(genesisSeed))
}

// hashedEntry fixes the canonical field order covered by the entry
// hash. RLP cannot carry signed integers, so the amount is split into a
// sign flag and magnitude. Metadata is flattened to parallel key/value
// slices sorted by key.
type hashedEntry struct {
	Sequence       uint64
	EntryID        string
	Timestamp      uint64
	Type           string
	PlayerID       string
	AmountNeg      bool
	AmountAbs      uint64
	Reason         string
	HandID         string
	TableID        string
	BalanceAfter   uint64
	MetadataKeys   []string
	MetadataValues []string
	PrevHash       string
}

func entryDigest(e *Entry) (string, error) {
	if e == nil {
		return "", fmt.Errorf("ledger: nil entry")
	}
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, e.Metadata[k])
	}
	neg := e.Amount < 0
	abs := uint64(e.Amount)
	if neg {
		abs = uint64(-e.Amount)
	}
	if e.BalanceAfter < 0 {
		return "", fmt.Errorf("ledger: negative balance-after %d", e.BalanceAfter)
	}
	if e.Timestamp < 0 {
		return "", fmt.Errorf("ledger: negative timestamp %d", e.Timestamp)
	}
	encoded, err := rlp.EncodeToBytes(&hashedEntry{
		Sequence:       e.Sequence,
		EntryID:        e.EntryID,
		Timestamp:      uint64(e.Timestamp),
		Type:           string(e.Type),
		PlayerID:       e.PlayerID,
		AmountNeg:      neg,
		AmountAbs:      abs,
		Reason:         e.Reason,
		HandID:         e.HandID,
		TableID:        e.TableID,
		BalanceAfter:   uint64(e.BalanceAfter),
		MetadataKeys:   keys,
		MetadataValues: values,
		PrevHash:       e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("ledger: encode entry: %w", err)
	}
	return hex.EncodeToString(ethcrypto.Keccak256(encoded)), nil
}
