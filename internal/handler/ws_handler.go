package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler streams session events and accepts session actions.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Pushes tick and submitted events; accepts answer, flag, goto, submit, state and ping.
func (h *WSHandler) SessionStream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	claims := middleware.GetClaims(c)

	// Subscribe first so unknown sessions get a normal HTTP error.
	events, cancel, err := h.sessionService.Subscribe(id, claims)
	if err != nil {
		fail(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id).Logger()
	wsLog.Info().Msg("Respondent connected")

	forwarded := make(chan struct{})
	go h.forward(conn, events, forwarded)

	if view, err := h.sessionService.State(id, claims); err == nil {
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: view})
	}

	for {
		action, payload, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedClose(err) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		if !h.dispatch(conn, id, claims, action, payload) {
			wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(action))
		}
	}

	cancel()
	<-forwarded
}

// forward relays session events until the subscription ends. A closed event
// also ends the connection so the read loop returns.
func (h *WSHandler) forward(conn *ws.Conn, events <-chan model.SessionEvent, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		if err := conn.WriteTyped(ws.SessionEventResponse{Event: ws.Event(ev.Type), Data: ev}); err != nil {
			continue
		}
		if ev.Type == model.EventClosed {
			_ = conn.WriteClose("session closed")
			_ = conn.Close()
		}
	}
}

// dispatch runs one client action. It returns false for unknown actions.
func (h *WSHandler) dispatch(conn *ws.Conn, id string, claims *service.Claims, action ws.Action, payload []byte) bool {
	var (
		view *model.SessionView
		err  error
	)

	switch action {
	case ws.ActionPing:
		_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return true

	case ws.ActionState:
		view, err = h.sessionService.State(id, claims)

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if json.Unmarshal(payload, &req) != nil || req.QuestionID == "" || (req.Label == "" && req.Text == "") {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "question_id and label or text are required")
			return true
		}
		view, err = h.sessionService.Answer(id, claims, &model.SelectAnswerRequest{
			QuestionID: req.QuestionID,
			Label:      req.Label,
			Text:       req.Text,
		})

	case ws.ActionFlag:
		var req ws.FlagRequest
		if json.Unmarshal(payload, &req) != nil || req.QuestionID == "" {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "question_id is required")
			return true
		}
		view, err = h.sessionService.ToggleFlag(id, claims, req.QuestionID)

	case ws.ActionGoTo:
		var req ws.GoToRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), "index is required")
			return true
		}
		view, err = h.sessionService.GoTo(id, claims, req.Index)

	case ws.ActionSubmit:
		result, err := h.sessionService.Submit(id, claims)
		if err != nil {
			writeWSError(conn, err)
			return true
		}
		_ = conn.WriteTyped(ws.ResultResponse{Event: ws.EventResult, Result: result})
		return true

	default:
		return false
	}

	if err != nil {
		writeWSError(conn, err)
		return true
	}
	_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: view})
	return true
}

func writeWSError(conn *ws.Conn, err error) {
	_, code, ok := classify(err)
	if !ok {
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return
	}
	_ = conn.WriteError(string(code), err.Error())
}
