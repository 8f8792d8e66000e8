package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Every error response of our API is a JSON object of this shape
type errorJSON struct {
	Error string `json:"error"`
}

func sendError(w http.ResponseWriter, code int, message string) {
	b, _ := json.Marshal(&errorJSON{Error: message})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	w.Write(b)
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	www.SendJSON(w, &pingJSON{
		Time: time.Now().Unix(),
	})
}
