package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait bounds the silence between client frames; clients ping well
	// inside it.
	readWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one raw frame with a read deadline. Only connection
// errors are returned; decoding is left to Peek and json.Unmarshal.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := conn.ReadMessage()
	return data, err
}

// Peek decodes the action of a frame.
func Peek(data []byte) (Action, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Action, nil
}
