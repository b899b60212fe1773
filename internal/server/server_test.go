package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/table"
)

func newTestServer(t *testing.T) (*Server, *confidential.FakeBackend, *httptest.Server) {
	t.Helper()
	backend := confidential.NewFakeBackend()
	registry := table.NewRegistry(table.RegistryConfig{
		Backend: backend,
		Logger:  log.New(io.Discard),
		Seed:    42,
	})
	srv := New(DefaultConfig(), registry, log.New(io.Discard))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, backend, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createTable(t *testing.T, ts *httptest.Server, smallBlind, bigBlind uint64) string {
	t.Helper()
	body, err := json.Marshal(CreateTableRequest{SmallBlind: smallBlind, BigBlind: bigBlind})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/tables", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created CreateTableResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	require.Equal(t, "ok", health["status"])
}

func TestCreateAndListTables(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	id := createTable(t, ts, 10, 20)

	var summaries []table.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables", &summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, id, summaries[0].ID)

	var sum table.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables/"+id, &sum))
	require.Equal(t, "waiting", sum.Phase)
	require.Equal(t, uint64(10), sum.SmallBlind)
	require.Equal(t, uint64(20), sum.BigBlind)
	require.Zero(t, sum.PlayerCount)
}

func TestCreateTableRejectsBadBlinds(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	body, err := json.Marshal(CreateTableRequest{SmallBlind: 10, BigBlind: 15})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/tables", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errData ErrorData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errData))
	require.Equal(t, "invalid_bet_amount", errData.Code)
}

func TestUnknownTableIs404(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	var errData ErrorData
	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/tables/nope", &errData))
	require.Equal(t, "table_not_found", errData.Code)
}

func TestWinnerBeforeHandIsConflict(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	id := createTable(t, ts, 10, 20)

	var errData ErrorData
	require.Equal(t, http.StatusConflict, getJSON(t, ts.URL+"/tables/"+id+"/winner", &errData))
	require.Equal(t, "invalid_state", errData.Code)
}

// wsClient drives one WebSocket connection in tests.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(messageType MessageType, data interface{}) {
	c.t.Helper()
	msg, err := NewMessage(messageType, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect reads until a message of the wanted type arrives, skipping pushed
// events. An error message fails the test immediately.
func (c *wsClient) expect(messageType MessageType) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))
	for {
		var msg Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		switch msg.Type {
		case messageType:
			return msg.Data
		case MsgEvent:
			continue
		case MsgError:
			var errData ErrorData
			_ = json.Unmarshal(msg.Data, &errData)
			c.t.Fatalf("unexpected error message: %s: %s", errData.Code, errData.Message)
		default:
			c.t.Fatalf("unexpected message type %q while waiting for %q", msg.Type, messageType)
		}
	}
}

// expectError reads until an error message arrives and returns its code.
func (c *wsClient) expectError() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if msg.Type == MsgEvent {
			continue
		}
		require.Equal(c.t, MsgError, msg.Type)
		var errData ErrorData
		require.NoError(c.t, json.Unmarshal(msg.Data, &errData))
		return errData.Code
	}
}

func (c *wsClient) auth(player string) {
	c.t.Helper()
	c.send(MsgAuth, AuthData{Player: player})
	var resp AuthResponseData
	require.NoError(c.t, json.Unmarshal(c.expect(MsgAuthResponse), &resp))
	require.True(c.t, resp.Success)
}

func (c *wsClient) join(backend *confidential.FakeBackend, tableID, player string, buyIn uint64) int {
	c.t.Helper()
	sealed, err := backend.Seal(buyIn, confidential.Identity(player))
	require.NoError(c.t, err)
	c.send(MsgJoinTable, JoinTableData{TableID: tableID, BuyIn: encryptedValueData(sealed)})
	var joined JoinedData
	require.NoError(c.t, json.Unmarshal(c.expect(MsgJoined), &joined))
	return joined.SeatIndex
}

func TestWebSocketRequiresAuth(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestServer(t)

	client := dialWS(t, ts)
	client.send(MsgStartGame, StartGameData{TableID: "whatever"})
	require.Equal(t, "unauthenticated", client.expectError())
}

func TestWebSocketHandLifecycle(t *testing.T) {
	t.Parallel()
	_, backend, ts := newTestServer(t)
	tableID := createTable(t, ts, 10, 20)

	alice := dialWS(t, ts)
	alice.auth("alice")
	require.Equal(t, 0, alice.join(backend, tableID, "alice", 1000))

	bob := dialWS(t, ts)
	bob.auth("bob")
	require.Equal(t, 1, bob.join(backend, tableID, "bob", 1000))

	alice.send(MsgStartGame, StartGameData{TableID: tableID})
	alice.expect(MsgAck)

	// Hole card handles are owner-scoped; each player sees only their own.
	alice.send(MsgHoleCards, HoleCardsRequest{TableID: tableID})
	var cards HoleCardsData
	require.NoError(t, json.Unmarshal(alice.expect(MsgHoleCardsData), &cards))
	require.Len(t, cards.Cards, 2)
	require.NotEmpty(t, cards.Cards[0].Handle)

	// Heads-up the dealer posted the small blind and acts first; folding
	// ends the hand immediately.
	alice.send(MsgAction, ActionData{TableID: tableID, Action: "fold"})
	alice.expect(MsgAck)

	var sum table.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables/"+tableID, &sum))
	require.Equal(t, "finished", sum.Phase)

	var winner map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables/"+tableID+"/winner", &winner))
	require.Equal(t, "bob", winner["player"])
	require.Equal(t, float64(30), winner["winnings"])
}

func TestWebSocketBetWithEncryptedAmount(t *testing.T) {
	t.Parallel()
	_, backend, ts := newTestServer(t)
	tableID := createTable(t, ts, 10, 20)

	alice := dialWS(t, ts)
	alice.auth("alice")
	alice.join(backend, tableID, "alice", 1000)

	bob := dialWS(t, ts)
	bob.auth("bob")
	bob.join(backend, tableID, "bob", 1000)

	alice.send(MsgStartGame, StartGameData{TableID: tableID})
	alice.expect(MsgAck)

	// Bet without the sealed mirror is rejected up front.
	alice.send(MsgAction, ActionData{TableID: tableID, Action: "bet", Amount: 60})
	require.Equal(t, "invalid_encrypted_amount", alice.expectError())

	sealed, err := backend.Seal(60, "alice")
	require.NoError(t, err)
	enc := encryptedValueData(sealed)
	alice.send(MsgAction, ActionData{TableID: tableID, Action: "bet", Amount: 60, Encrypted: &enc})
	alice.expect(MsgAck)

	var sum table.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables/"+tableID, &sum))
	require.Equal(t, uint64(80), sum.Pot)
	require.Equal(t, 1, sum.CurrentIndex)
}

func TestWebSocketLeaveFreesSeat(t *testing.T) {
	t.Parallel()
	_, backend, ts := newTestServer(t)
	tableID := createTable(t, ts, 10, 20)

	alice := dialWS(t, ts)
	alice.auth("alice")
	alice.join(backend, tableID, "alice", 1000)

	alice.send(MsgLeaveTable, LeaveTableData{TableID: tableID})
	alice.expect(MsgLeft)

	var sum table.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/tables/"+tableID, &sum))
	require.Zero(t, sum.PlayerCount)
}
