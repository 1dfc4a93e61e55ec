package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Instruction tags recognised by InspectMessage.
const (
	systemTransferTag       = uint32(2)
	tokenTransferTag        = uint8(3)
	tokenTransferCheckedTag = uint8(12)
)

// TransferKind classifies a decoded value transfer.
type TransferKind string

const (
	TransferNative       TransferKind = "native"
	TransferToken        TransferKind = "token"
	TransferTokenChecked TransferKind = "token_checked"
)

// TransferSummary is one value transfer found in a compiled message.
type TransferSummary struct {
	Kind        TransferKind
	Program     solana.PublicKey
	Amount      uint64
	Decimals    *uint8
	Mint        *solana.PublicKey
	Source      solana.PublicKey
	Destination solana.PublicKey
	// Authority is the signing wallet; for native transfers it equals Source.
	Authority solana.PublicKey
}

// Human renders the transferred amount when decimals are known.
func (t TransferSummary) Human() string {
	switch {
	case t.Kind == TransferNative:
		return Lamports(t.Amount).String()
	case t.Decimals != nil:
		return AmountFromRaw(t.Amount, *t.Decimals).String()
	}
	return fmt.Sprintf("%d raw", t.Amount)
}

// InspectMessage decodes the native and token transfers of msg. Instructions
// for other programs, and malformed transfers, are skipped.
func InspectMessage(msg *solana.Message) []TransferSummary {
	keys := msg.AccountKeys
	var out []TransferSummary
	for _, ci := range msg.Instructions {
		program, ok := keyAt(keys, ci.ProgramIDIndex)
		if !ok {
			continue
		}
		switch {
		case program.Equals(solana.SystemProgramID):
			if t, ok := decodeSystemTransfer(ci, keys); ok {
				out = append(out, t)
			}
		case program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID):
			if t, ok := decodeTokenTransfer(ci, keys); ok {
				t.Program = program
				out = append(out, t)
			}
		}
	}
	return out
}

func keyAt(keys solana.PublicKeySlice, idx uint16) (solana.PublicKey, bool) {
	if int(idx) >= len(keys) {
		return solana.PublicKey{}, false
	}
	return keys[idx], true
}

// decodeSystemTransfer reads [u32 tag=2][u64 lamports] with accounts [from, to].
func decodeSystemTransfer(ci solana.CompiledInstruction, keys solana.PublicKeySlice) (TransferSummary, bool) {
	if len(ci.Data) < 12 || len(ci.Accounts) < 2 {
		return TransferSummary{}, false
	}
	if binary.LittleEndian.Uint32(ci.Data[0:4]) != systemTransferTag {
		return TransferSummary{}, false
	}
	from, ok1 := keyAt(keys, ci.Accounts[0])
	to, ok2 := keyAt(keys, ci.Accounts[1])
	if !ok1 || !ok2 {
		return TransferSummary{}, false
	}
	return TransferSummary{
		Kind:        TransferNative,
		Program:     solana.SystemProgramID,
		Amount:      binary.LittleEndian.Uint64(ci.Data[4:12]),
		Source:      from,
		Destination: to,
		Authority:   from,
	}, true
}

// decodeTokenTransfer handles Transfer [source, destination, authority] and
// TransferChecked [source, mint, destination, authority].
func decodeTokenTransfer(ci solana.CompiledInstruction, keys solana.PublicKeySlice) (TransferSummary, bool) {
	if len(ci.Data) < 9 {
		return TransferSummary{}, false
	}
	amount := binary.LittleEndian.Uint64(ci.Data[1:9])

	switch ci.Data[0] {
	case tokenTransferTag:
		if len(ci.Accounts) < 3 {
			return TransferSummary{}, false
		}
		src, ok1 := keyAt(keys, ci.Accounts[0])
		dst, ok2 := keyAt(keys, ci.Accounts[1])
		auth, ok3 := keyAt(keys, ci.Accounts[2])
		if !ok1 || !ok2 || !ok3 {
			return TransferSummary{}, false
		}
		return TransferSummary{Kind: TransferToken, Amount: amount, Source: src, Destination: dst, Authority: auth}, true

	case tokenTransferCheckedTag:
		if len(ci.Data) < 10 || len(ci.Accounts) < 4 {
			return TransferSummary{}, false
		}
		src, ok1 := keyAt(keys, ci.Accounts[0])
		mint, ok2 := keyAt(keys, ci.Accounts[1])
		dst, ok3 := keyAt(keys, ci.Accounts[2])
		auth, ok4 := keyAt(keys, ci.Accounts[3])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return TransferSummary{}, false
		}
		decimals := ci.Data[9]
		return TransferSummary{
			Kind:        TransferTokenChecked,
			Amount:      amount,
			Decimals:    &decimals,
			Mint:        &mint,
			Source:      src,
			Destination: dst,
			Authority:   auth,
		}, true
	}
	return TransferSummary{}, false
}
