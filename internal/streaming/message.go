package streaming

import (
	"encoding/json"
	"errors"
	"time"
)

type MessageType string

const (
	MessageTypeDeposit  MessageType = "deposit"
	MessageTypeWithdraw MessageType = "withdraw"
	MessageTypeRefresh  MessageType = "refresh"
	MessageTypeSession  MessageType = "session"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Message struct {
	ID          string      `json:"id"`
	Type        MessageType `json:"type"`
	Outcome     Outcome     `json:"outcome"`
	ChainID     uint64      `json:"chain_id,omitempty"`
	Contract    string      `json:"contract"`
	Account     string      `json:"account,omitempty"`
	AmountWei   string      `json:"amount_wei,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	TraceID     string      `json:"trace_id,omitempty"`
	Time        time.Time   `json:"time"`
}

func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func validate(msg Message) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.Type == "" {
		return errors.New("message type is required")
	}
	if msg.Outcome == "" {
		return errors.New("message outcome is required")
	}
	if msg.Contract == "" {
		return errors.New("contract is required")
	}
	return nil
}
