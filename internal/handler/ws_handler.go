package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
	"github.com/stemsi/quizdesk/internal/session"
	ws "github.com/stemsi/quizdesk/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events and accepts quiz actions over a socket.
type WSHandler struct {
	sessions      *service.QuizSessionService
	log           zerolog.Logger
	upgrader      websocket.Upgrader
	submitTimeout time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.QuizSessionService, log zerolog.Logger, allowedOrigins []string, submitTimeout time.Duration) *WSHandler {
	return &WSHandler{
		sessions:      sessions,
		log:           logger.Component(log, "ws_handler"),
		upgrader:      buildUpgrader(allowedOrigins),
		submitTimeout: submitTimeout,
	}
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteTyped(c.ws, v)
}

func (c *conn) writeError(err error) error {
	f := classify(err)
	msg := f.message
	if msg == "" {
		msg = response.GetMessage(f.code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteError(c.ws, string(f.code), msg)
}

// SessionStream godoc
// WS /ws/v1/sessions/:course_id/:quiz_id/stream
// Pushes tick, saved, submitted, submit_failed, expired and state events of
// an open session and accepts select, goto, submit and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	sh := SessionHandler{sessions: h.sessions, log: h.log}
	sess, ok := sh.lookup(c)
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	out := &conn{ws: raw}

	wsLog := h.log.With().
		Str("quiz_id", sess.QuizID()).
		Str("course_id", sess.CourseID()).
		Logger()
	wsLog.Info().Msg("Stream connected")

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	view := sess.View()
	if err := out.write(session.Event{Type: session.EventState, TimeRemaining: view.TimeRemaining, State: &view}); err != nil {
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if err := out.write(ev); err != nil {
				wsLog.Debug().Err(err).Msg("Event write failed")
				raw.Close()
				return
			}
		}
		// The session closed; end the stream so the reader returns.
		out.mu.Lock()
		raw.SetWriteDeadline(time.Now().Add(time.Second))
		raw.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
		out.mu.Unlock()
		raw.Close()
	}()

	for {
		data, err := ws.ReadMessage(raw)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		action, err := ws.Peek(data)
		if err != nil {
			out.write(ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: response.GetMessage(response.ErrInvalidPayload)})
			continue
		}

		switch action {
		case ws.ActionSelect:
			h.handleSelect(out, sess, data)
		case ws.ActionGoTo:
			h.handleGoTo(out, sess, data)
		case ws.ActionSubmit:
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.handleSubmit(out, wsLog, sess)
			}()
		case ws.ActionPing:
			out.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
			out.write(ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: "unknown action: " + string(action)})
		}
	}

	// Release the writer goroutine before waiting on it.
	unsubscribe()
}

func (h *WSHandler) handleSelect(out *conn, sess *session.Session, data []byte) {
	var req ws.SelectRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionIndex == nil || req.OptionIndex == nil {
		out.write(ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrValidation), Error: "question_index and option_index are required"})
		return
	}
	view, err := sess.SelectOption(*req.QuestionIndex, *req.OptionIndex)
	if err != nil {
		out.writeError(err)
		return
	}
	out.write(ws.StateResponse{Event: ws.EventState, State: view})
}

func (h *WSHandler) handleGoTo(out *conn, sess *session.Session, data []byte) {
	var req ws.GoToRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionIndex == nil {
		out.write(ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrValidation), Error: "question_index is required"})
		return
	}
	view, err := sess.GoTo(*req.QuestionIndex)
	if err != nil {
		out.writeError(err)
		return
	}
	out.write(ws.StateResponse{Event: ws.EventState, State: view})
}

// handleSubmit runs a manual submission. Its outcome arrives as a submitted
// or submit_failed event; only refusals that never reached the backend are
// answered with an error frame.
func (h *WSHandler) handleSubmit(out *conn, wsLog zerolog.Logger, sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), h.submitTimeout)
	defer cancel()

	if _, err := sess.Submit(ctx); err != nil {
		if refusedBeforeSend(err) {
			out.writeError(err)
			return
		}
		wsLog.Warn().Err(err).Msg("Submit failed")
	}
}

func refusedBeforeSend(err error) bool {
	return errors.Is(err, session.ErrSubmitted) ||
		errors.Is(err, session.ErrSubmitInFlight) ||
		errors.Is(err, session.ErrReadOnly) ||
		errors.Is(err, session.ErrClosed) ||
		errors.Is(err, session.ErrNotReady)
}
