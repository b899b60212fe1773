package server

import (
	"encoding/json"
	"time"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
)

// MessageType identifies a WebSocket message.
type MessageType string

// Client → server message types.
const (
	MsgAuth       MessageType = "auth"
	MsgJoinTable  MessageType = "join_table"
	MsgLeaveTable MessageType = "leave_table"
	MsgStartGame  MessageType = "start_game"
	MsgAction     MessageType = "action"
	MsgReveal     MessageType = "reveal"
	MsgHoleCards  MessageType = "hole_cards"
)

// Server → client message types.
const (
	MsgAuthResponse  MessageType = "auth_response"
	MsgJoined        MessageType = "joined"
	MsgLeft          MessageType = "left"
	MsgHoleCardsData MessageType = "hole_cards_data"
	MsgEvent         MessageType = "event"
	MsgError         MessageType = "error"
	MsgAck           MessageType = "ack"
)

// Message is the WebSocket envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// EncryptedValueData is the wire form of a sealed value: hex handle plus
// base64 proof.
type EncryptedValueData struct {
	Handle string `json:"handle"`
	Proof  []byte `json:"proof"`
}

// decode rebuilds the sealed value for the given owner.
func (d EncryptedValueData) decode(owner confidential.Identity) (confidential.Value, error) {
	h, err := confidential.ParseHandle(d.Handle)
	if err != nil {
		return confidential.Value{}, err
	}
	return confidential.Value{Handle: h, Proof: d.Proof, Owner: owner}, nil
}

// encryptedValueData converts a sealed value to its wire form.
func encryptedValueData(v confidential.Value) EncryptedValueData {
	return EncryptedValueData{Handle: v.Handle.String(), Proof: v.Proof}
}

// Client → server payloads.

type AuthData struct {
	Player string `json:"player"`
}

type JoinTableData struct {
	TableID string             `json:"tableId"`
	BuyIn   EncryptedValueData `json:"buyIn"`
}

type LeaveTableData struct {
	TableID string `json:"tableId"`
}

type StartGameData struct {
	TableID string `json:"tableId"`
}

type ActionData struct {
	TableID   string              `json:"tableId"`
	Action    string              `json:"action"` // fold, check, call or bet
	Amount    uint64              `json:"amount,omitempty"`
	Encrypted *EncryptedValueData `json:"encrypted,omitempty"`
}

type RevealData struct {
	TableID string `json:"tableId"`
	Card1   uint8  `json:"card1"`
	Card2   uint8  `json:"card2"`
}

type HoleCardsRequest struct {
	TableID string `json:"tableId"`
}

// Server → client payloads.

type AuthResponseData struct {
	Success bool   `json:"success"`
	Player  string `json:"player,omitempty"`
	Error   string `json:"error,omitempty"`
}

type JoinedData struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
}

type HoleCardsData struct {
	TableID string               `json:"tableId"`
	Cards   []EncryptedValueData `json:"cards"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EventData struct {
	Type    string      `json:"type"`
	TableID string      `json:"tableId"`
	Payload interface{} `json:"payload"`
}

type AckData struct {
	Of MessageType `json:"of"`
}
