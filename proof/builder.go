package proof

import (
	"fmt"

	"gocsprbridge/types"
)

// RecipientFunc validates a destination address and returns its canonical form
type RecipientFunc func(address string) (string, error)

type Params struct {
	Destination  types.ChainID
	SourceDec    int
	DestDec      int
	DestMaxBits  int
	NormalizeDst RecipientFunc
}

// Builder turns source events into canonical messages for one destination chain
type Builder struct {
	params Params
}

func NewBuilder(p Params) *Builder {
	return &Builder{params: p}
}

func (b *Builder) Delta() int {
	return b.params.DestDec - b.params.SourceDec
}

func (b *Builder) Build(ev types.DomainEvent) (types.CanonicalMessage, error) {
	if ev.DestinationChain != b.params.Destination {
		return types.CanonicalMessage{}, fmt.Errorf("%w: event %s targets %q, expected %q",
			types.ErrMalformedEvent, ev.SourceTxID, ev.DestinationChain, b.params.Destination)
	}

	recipient := ev.DestinationAddress
	if b.params.NormalizeDst != nil {
		var err error
		recipient, err = b.params.NormalizeDst(ev.DestinationAddress)
		if err != nil {
			return types.CanonicalMessage{}, fmt.Errorf("%w: recipient %q: %s", types.ErrMalformedEvent, ev.DestinationAddress, err)
		}
	}

	amount, err := Convert(ev.Amount, b.Delta(), b.params.DestMaxBits)
	if err != nil {
		return types.CanonicalMessage{}, fmt.Errorf("event %s: %w", ev.SourceTxID, err)
	}

	return types.CanonicalMessage{
		SourceChain: ev.SourceChain,
		SourceTxID:  ev.SourceTxID,
		Amount:      amount,
		Recipient:   recipient,
		Nonce:       Nonce(ev.SourceTxID),
	}, nil
}
