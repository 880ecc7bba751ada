package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ozolins/attachup/internal/wsframe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWS upgrades the connection and serves request frames until the peer
// goes away. Each frame is answered with a response frame carrying the same
// ID, so the client may pipeline requests.
func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if _, err := s.clientID(r); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info(r.Context(), "socket channel connected", "remote", r.RemoteAddr)

	for {
		var req wsframe.RequestFrame
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn(r.Context(), "socket channel read error", "error", err)
			}
			return
		}

		resp := s.dispatchFrame(req)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn(r.Context(), "socket channel write error", "error", err)
			return
		}
	}
}

// dispatchFrame routes one socket frame to the operation it names. The
// socket carries the same operations as the REST surface; authentication
// happened once at upgrade time.
func (s *HTTPServer) dispatchFrame(req wsframe.RequestFrame) wsframe.ResponseFrame {
	switch {
	case req.Method == http.MethodGet && req.Path == "/v1/attachments/form/v2":
		form, err := s.issuer.IssueV2()
		if err != nil {
			return errorFrame(req.ID, http.StatusInternalServerError, err)
		}
		return okFrame(req.ID, form)

	case req.Method == http.MethodGet && req.Path == "/v1/attachments/form/v3":
		form, err := s.issuer.IssueV3()
		if err != nil {
			return errorFrame(req.ID, http.StatusInternalServerError, err)
		}
		return okFrame(req.ID, form)

	default:
		return wsframe.ResponseFrame{ID: req.ID, Status: http.StatusNotFound, Error: "unknown operation"}
	}
}

func okFrame(id string, v any) wsframe.ResponseFrame {
	body, err := json.Marshal(v)
	if err != nil {
		return errorFrame(id, http.StatusInternalServerError, err)
	}
	return wsframe.ResponseFrame{ID: id, Status: http.StatusOK, Body: body}
}

func errorFrame(id string, status int, err error) wsframe.ResponseFrame {
	return wsframe.ResponseFrame{ID: id, Status: status, Error: err.Error()}
}
