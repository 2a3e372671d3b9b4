package deribit

import (
	"encoding/json"
	"fmt"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcMessage covers responses, subscription notifications and heartbeats.
type rpcMessage struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Error  *rpcError       `json:"error"`
}

type subscriptionParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type heartbeatParams struct {
	Type string `json:"type"`
}

// bookMessage is one notification on a grouped book channel. Every message
// carries the venue's top levels for the subscribed depth.
type bookMessage struct {
	Timestamp      int64       `json:"timestamp"`
	InstrumentName string      `json:"instrument_name"`
	ChangeID       int64       `json:"change_id"`
	Bids           []bookEntry `json:"bids"`
	Asks           []bookEntry `json:"asks"`
}

// bookEntry is [price, amount].
type bookEntry struct {
	Price  float64
	Amount float64
}

func (e *bookEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("book entry: want 2 fields, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Price); err != nil {
		return fmt.Errorf("book entry price: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Amount); err != nil {
		return fmt.Errorf("book entry amount: %w", err)
	}
	return nil
}
