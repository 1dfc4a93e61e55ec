package solana

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

const (
	tagSetComputeUnitLimit byte = 0x02
	tagSetComputeUnitPrice byte = 0x03

	setLimitLen = 5
	setPriceLen = 9

	microLamportsPerLamport = 1_000_000

	// DefaultComputeUnitLimit is what the runtime assumes for a transaction
	// that does not request a limit.
	DefaultComputeUnitLimit uint32 = 200_000
)

// DirectiveKind is the kind of a decoded compute-budget instruction.
type DirectiveKind int

const (
	DirectiveUnitLimit DirectiveKind = iota + 1
	DirectiveUnitPrice
)

// ComputeBudgetDirective is one decoded compute-budget instruction.
type ComputeBudgetDirective struct {
	Kind  DirectiveKind
	Units uint32 // set when Kind == DirectiveUnitLimit
	Price uint64 // micro-lamports per unit, set when Kind == DirectiveUnitPrice
}

// ComputeBudgetInfo summarizes the fee-control directives of a transaction.
type ComputeBudgetInfo struct {
	ComputeUnitLimit  uint32
	MicroLamportPrice uint64
	MaxFee            Amount
}

// EffectiveLimit returns the requested limit, or the runtime default when none was set.
func (i ComputeBudgetInfo) EffectiveLimit() uint32 {
	if i.ComputeUnitLimit == 0 {
		return DefaultComputeUnitLimit
	}
	return i.ComputeUnitLimit
}

// SetComputeUnitLimit encodes tag 0x02 followed by units as u32 little endian.
func SetComputeUnitLimit(units uint32) solana.Instruction {
	data := make([]byte, setLimitLen)
	data[0] = tagSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// SetComputeUnitPrice encodes tag 0x03 followed by the micro-lamport price as u64 little endian.
func SetComputeUnitPrice(microLamports uint64) solana.Instruction {
	data := make([]byte, setPriceLen)
	data[0] = tagSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// DecodeComputeBudgetData decodes a payload that is known to target the
// compute-budget program. ok is false for unknown tags and short payloads.
func DecodeComputeBudgetData(data []byte) (ComputeBudgetDirective, bool) {
	if len(data) == 0 {
		return ComputeBudgetDirective{}, false
	}
	switch data[0] {
	case tagSetComputeUnitLimit:
		if len(data) < setLimitLen {
			return ComputeBudgetDirective{}, false
		}
		return ComputeBudgetDirective{
			Kind:  DirectiveUnitLimit,
			Units: binary.LittleEndian.Uint32(data[1:setLimitLen]),
		}, true
	case tagSetComputeUnitPrice:
		if len(data) < setPriceLen {
			return ComputeBudgetDirective{}, false
		}
		return ComputeBudgetDirective{
			Kind:  DirectiveUnitPrice,
			Price: binary.LittleEndian.Uint64(data[1:setPriceLen]),
		}, true
	}
	return ComputeBudgetDirective{}, false
}

// DecodeComputeBudget decodes ix if it targets the compute-budget program.
// Instructions for other programs are not applicable and return ok == false.
func DecodeComputeBudget(ix solana.Instruction) (ComputeBudgetDirective, bool) {
	if !ix.ProgramID().Equals(ComputeBudgetProgramID) {
		return ComputeBudgetDirective{}, false
	}
	data, err := ix.Data()
	if err != nil {
		return ComputeBudgetDirective{}, false
	}
	return DecodeComputeBudgetData(data)
}

// ScanComputeBudget folds the directives of ixs. Later instructions override
// earlier ones of the same kind; unset values stay zero.
func ScanComputeBudget(ixs []solana.Instruction) (ComputeBudgetInfo, error) {
	var limit uint32
	var price uint64
	for _, ix := range ixs {
		d, ok := DecodeComputeBudget(ix)
		if !ok {
			continue
		}
		limit, price = applyDirective(d, limit, price)
	}
	return NewComputeBudgetInfo(limit, price)
}

// ScanCompiledMessage is ScanComputeBudget for an already compiled message,
// resolving program indexes against the static account keys.
func ScanCompiledMessage(msg *solana.Message) (ComputeBudgetInfo, error) {
	var limit uint32
	var price uint64
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
			continue
		}
		if !msg.AccountKeys[ci.ProgramIDIndex].Equals(ComputeBudgetProgramID) {
			continue
		}
		d, ok := DecodeComputeBudgetData(ci.Data)
		if !ok {
			continue
		}
		limit, price = applyDirective(d, limit, price)
	}
	return NewComputeBudgetInfo(limit, price)
}

func applyDirective(d ComputeBudgetDirective, limit uint32, price uint64) (uint32, uint64) {
	switch d.Kind {
	case DirectiveUnitLimit:
		limit = d.Units
	case DirectiveUnitPrice:
		price = d.Price
	}
	return limit, price
}

// NewComputeBudgetInfo derives the worst-case priority fee for limit and price.
func NewComputeBudgetInfo(limit uint32, price uint64) (ComputeBudgetInfo, error) {
	fee, err := PriorityFeeLamports(limit, price)
	if err != nil {
		return ComputeBudgetInfo{}, err
	}
	return ComputeBudgetInfo{
		ComputeUnitLimit:  limit,
		MicroLamportPrice: price,
		MaxFee:            Lamports(fee),
	}, nil
}

// PriorityFeeLamports returns floor(limit * price / 1_000_000).
func PriorityFeeLamports(limit uint32, microLamportsPerUnit uint64) (uint64, error) {
	hi, lo := bits.Mul64(uint64(limit), microLamportsPerUnit)
	if hi >= microLamportsPerLamport {
		return 0, fmt.Errorf("%w: limit=%d price=%d", ErrFeeOverflow, limit, microLamportsPerUnit)
	}
	q, _ := bits.Div64(hi, lo, microLamportsPerLamport)
	return q, nil
}

// PriorityFeeUpperBound returns ceil(limit * price / 1_000_000), the most the
// network may charge when every requested unit is consumed.
func PriorityFeeUpperBound(limit uint32, microLamportsPerUnit uint64) (uint64, error) {
	hi, lo := bits.Mul64(uint64(limit), microLamportsPerUnit)
	if hi >= microLamportsPerLamport {
		return 0, fmt.Errorf("%w: limit=%d price=%d", ErrFeeOverflow, limit, microLamportsPerUnit)
	}
	q, r := bits.Div64(hi, lo, microLamportsPerLamport)
	if r != 0 {
		if q == ^uint64(0) {
			return 0, fmt.Errorf("%w: limit=%d price=%d", ErrFeeOverflow, limit, microLamportsPerUnit)
		}
		q++
	}
	return q, nil
}
