package supply

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// EnterInstruction supplies Amount of idle assets to the venue
type EnterInstruction struct {
	Amount string `msgpack:"amount"`
}

// ExitInstruction withdraws Amount from the venue, or the whole position when All is set
type ExitInstruction struct {
	Amount string `msgpack:"amount,omitempty"`
	All    bool   `msgpack:"all,omitempty"`
}

// RouteParams bounds what a withdrawal route step may pull from the venue.
// An empty MaxAmount means no bound.
type RouteParams struct {
	MaxAmount string `msgpack:"max_amount,omitempty"`
}

// EncodeEnter builds the payload of an enter instruction
func EncodeEnter(amount decimal.Decimal) ([]byte, error) {
	return msgpack.Marshal(&EnterInstruction{Amount: amount.String()})
}

// EncodeExit builds the payload of an exit instruction
func EncodeExit(amount decimal.Decimal) ([]byte, error) {
	return msgpack.Marshal(&ExitInstruction{Amount: amount.String()})
}

// EncodeExitAll builds the payload of an exit of the whole position
func EncodeExitAll() ([]byte, error) {
	return msgpack.Marshal(&ExitInstruction{All: true})
}

// EncodeRouteParams builds route parameters. A nil max leaves the step unbounded.
func EncodeRouteParams(max *decimal.Decimal) ([]byte, error) {
	p := RouteParams{}
	if max != nil {
		p.MaxAmount = max.String()
	}
	return msgpack.Marshal(&p)
}

func decodeAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}
