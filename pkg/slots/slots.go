// Package slots implements resource-slot accounting: componentwise decimal
// arithmetic over named capacity dimensions, and parsing of user-supplied
// slot requests.
package slots

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cuemby/sessiond/pkg/corerr"
	"github.com/cuemby/sessiond/pkg/types"
)

// precision is the number of fractional digits resource slot values are
// rounded to, matching a NUMERIC(24,6) column.
const precision = 6

// Add returns the componentwise sum of a and b. Keys present in only one
// operand are treated as zero in the other.
func Add(a, b types.ResourceSlot) types.ResourceSlot {
	out := make(types.ResourceSlot, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = out[k].Add(v).Round(precision)
	}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v.Round(precision)
		}
	}
	return out
}

// Sub returns the componentwise difference a - b.
func Sub(a, b types.ResourceSlot) types.ResourceSlot {
	out := make(types.ResourceSlot, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		cur, ok := out[k]
		if !ok {
			cur = decimal.Zero
		}
		out[k] = cur.Sub(v).Round(precision)
	}
	return out
}

// LessEqual reports whether every slot in a is less than or equal to the
// corresponding slot in b, treating missing keys in either operand as zero.
// Used to test "does this request fit in the remaining capacity?".
func LessEqual(a, b types.ResourceSlot) bool {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if a[k].GreaterThan(b[k]) {
			return false
		}
	}
	return true
}

// FromUserInput parses a raw slot-name -> string-amount map into a
// ResourceSlot, rejecting any slot name not present in known.
//
// A bare integer or decimal string ("4", "0.5") is interpreted according to
// the slot's declared type: "count" slots take the value as-is; "bytes"
// slots accept an optional single-letter binary suffix (k, m, g, t) meaning
// KiB/MiB/GiB/TiB, e.g. "8g" -> 8 * 2^30.
func FromUserInput(raw map[string]string, known map[string]types.ResourceSlotType) (types.ResourceSlot, error) {
	out := make(types.ResourceSlot, len(raw))
	for name, value := range raw {
		slotType, ok := known[name]
		if !ok {
			return nil, corerr.NotFound("unknown resource slot %q", name)
		}
		amount, err := parseAmount(value, slotType.SlotType)
		if err != nil {
			return nil, corerr.PreconditionFailed("invalid value %q for slot %q: %v", value, name, err)
		}
		out[name] = amount.Round(precision)
	}
	return out, nil
}

var binarySuffixes = map[byte]int64{
	'k': 1 << 10,
	'm': 1 << 20,
	'g': 1 << 30,
	't': 1 << 40,
}

func parseAmount(raw string, slotType types.SlotType) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, corerr.PreconditionFailed("empty amount")
	}
	if slotType == types.SlotTypeBytes {
		last := raw[len(raw)-1]
		if mult, ok := binarySuffixes[last|0x20]; ok {
			numPart := raw[:len(raw)-1]
			base, err := decimal.NewFromString(numPart)
			if err != nil {
				return decimal.Zero, err
			}
			return base.Mul(decimal.NewFromInt(mult)), nil
		}
	}
	return decimal.NewFromString(raw)
}

// FormatCount renders a count-type decimal the way a CLI would (no trailing
// zeros beyond the value's own precision).
func FormatCount(d decimal.Decimal) string {
	return d.String()
}

// FormatBytes renders a byte count as an integer string, truncating any
// sub-byte remainder (resource slots never represent fractional bytes).
func FormatBytes(d decimal.Decimal) string {
	return strconv.FormatInt(d.IntPart(), 10)
}
