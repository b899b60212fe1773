package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
	"github.com/cipherdeck/cipherdeck/internal/table"
)

const sendBuffer = 64

// Connection is one WebSocket client. A connection authenticates once, holds
// at most one seat (mirroring the registry's one-seat rule) and receives the
// event stream for its table.
type Connection struct {
	ws       *websocket.Conn
	registry *table.Registry
	logger   *log.Logger
	send     chan *Message

	mu      sync.RWMutex
	player  confidential.Identity
	tableID string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection wraps an upgraded WebSocket.
func NewConnection(ws *websocket.Conn, registry *table.Registry, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ws:       ws,
		registry: registry,
		logger:   logger.WithPrefix("conn"),
		send:     make(chan *Message, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down.
func (c *Connection) Close() error {
	c.cancel()
	return c.ws.Close()
}

// Done is closed when the connection ends.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Player returns the authenticated identity, empty before auth.
func (c *Connection) Player() confidential.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

// Table returns the table this connection is seated at, if any.
func (c *Connection) Table() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

// Send queues a message; slow consumers are disconnected rather than
// allowed to stall the fan-out.
func (c *Connection) Send(msg *Message) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping client", "player", c.Player())
		c.cancel()
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) readPump() {
	defer c.cancel()
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		c.handle(&msg)
	}
}

func (c *Connection) reply(messageType MessageType, data interface{}) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("marshal reply", "error", err)
		return
	}
	c.Send(msg)
}

func (c *Connection) replyError(err error) {
	c.reply(MsgError, ErrorData{Code: errorCode(err), Message: err.Error()})
}

func (c *Connection) handle(msg *Message) {
	if msg.Type == MsgAuth {
		c.handleAuth(msg.Data)
		return
	}
	if c.Player() == "" {
		c.reply(MsgError, ErrorData{Code: "unauthenticated", Message: "authenticate first"})
		return
	}

	switch msg.Type {
	case MsgJoinTable:
		c.handleJoin(msg.Data)
	case MsgLeaveTable:
		c.handleLeave(msg.Data)
	case MsgStartGame:
		c.handleStart(msg.Data)
	case MsgAction:
		c.handleAction(msg.Data)
	case MsgReveal:
		c.handleReveal(msg.Data)
	case MsgHoleCards:
		c.handleHoleCards(msg.Data)
	default:
		c.reply(MsgError, ErrorData{Code: "unknown_message", Message: string(msg.Type)})
	}
}

func (c *Connection) handleAuth(data json.RawMessage) {
	var auth AuthData
	if err := json.Unmarshal(data, &auth); err != nil || auth.Player == "" {
		c.reply(MsgAuthResponse, AuthResponseData{Success: false, Error: "player required"})
		return
	}
	c.mu.Lock()
	c.player = confidential.Identity(auth.Player)
	c.mu.Unlock()
	c.logger.Info("client authenticated", "player", auth.Player)
	c.reply(MsgAuthResponse, AuthResponseData{Success: true, Player: auth.Player})
}

func (c *Connection) handleJoin(data json.RawMessage) {
	var join JoinTableData
	if err := json.Unmarshal(data, &join); err != nil {
		c.replyError(fmt.Errorf("%w: %v", table.ErrInvalidEncryptedData, err))
		return
	}
	buyIn, err := join.BuyIn.decode(c.Player())
	if err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}
	seat, err := c.registry.JoinTable(join.TableID, c.Player(), buyIn)
	if err != nil {
		c.replyError(err)
		return
	}
	c.mu.Lock()
	c.tableID = join.TableID
	c.mu.Unlock()
	c.reply(MsgJoined, JoinedData{TableID: join.TableID, SeatIndex: seat})
}

func (c *Connection) handleLeave(data json.RawMessage) {
	var leave LeaveTableData
	if err := json.Unmarshal(data, &leave); err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}
	if err := c.registry.LeaveTable(leave.TableID, c.Player()); err != nil {
		c.replyError(err)
		return
	}
	c.mu.Lock()
	c.tableID = ""
	c.mu.Unlock()
	c.reply(MsgLeft, LeaveTableData{TableID: leave.TableID})
}

func (c *Connection) handleStart(data json.RawMessage) {
	var start StartGameData
	if err := json.Unmarshal(data, &start); err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}
	if err := c.registry.StartGame(start.TableID, c.Player()); err != nil {
		c.replyError(err)
		return
	}
	c.reply(MsgAck, AckData{Of: MsgStartGame})
}

func (c *Connection) handleAction(data json.RawMessage) {
	var action ActionData
	if err := json.Unmarshal(data, &action); err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}

	var err error
	switch action.Action {
	case "fold":
		err = c.registry.Fold(action.TableID, c.Player())
	case "check":
		err = c.registry.Check(action.TableID, c.Player())
	case "call":
		err = c.registry.Call(action.TableID, c.Player())
	case "bet":
		if action.Encrypted == nil {
			err = table.ErrInvalidEncryptedAmount
			break
		}
		var enc confidential.Value
		enc, err = action.Encrypted.decode(c.Player())
		if err != nil {
			err = table.ErrInvalidEncryptedAmount
			break
		}
		err = c.registry.Bet(action.TableID, c.Player(), action.Amount, enc)
	default:
		c.reply(MsgError, ErrorData{Code: "unknown_action", Message: action.Action})
		return
	}
	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(MsgAck, AckData{Of: MsgAction})
}

func (c *Connection) handleReveal(data json.RawMessage) {
	var reveal RevealData
	if err := json.Unmarshal(data, &reveal); err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}
	err := c.registry.RevealCards(reveal.TableID, c.Player(), handrank.Card(reveal.Card1), handrank.Card(reveal.Card2))
	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(MsgAck, AckData{Of: MsgReveal})
}

func (c *Connection) handleHoleCards(data json.RawMessage) {
	var req HoleCardsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.replyError(table.ErrInvalidEncryptedData)
		return
	}
	cards, err := c.registry.HoleCards(req.TableID, c.Player())
	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(MsgHoleCardsData, HoleCardsData{
		TableID: req.TableID,
		Cards: []EncryptedValueData{
			encryptedValueData(cards[0]),
			encryptedValueData(cards[1]),
		},
	})
}
