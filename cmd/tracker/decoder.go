package main

import "solana-tx-tracker/internal/txevent"

// unwiredDecoder is the integration seam for the real wire-transaction
// decoder (spec §1 external collaborator: "the raw transaction decoder
// (takes a wire transaction, returns a structured event)"). It never
// claims a transaction is a BUY/SELL, so the router persists everything
// as OTHER until a real decoder is plugged in here.
type unwiredDecoder struct{}

func (unwiredDecoder) Decode(raw txevent.RawTx) (*txevent.Event, error) {
	return &txevent.Event{
		Signature: raw.Signature,
		Slot:      raw.Slot,
		Kind:      txevent.Other,
	}, nil
}
