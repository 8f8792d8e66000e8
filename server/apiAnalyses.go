package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/server/analysisdb"
	"github.com/scenesolver/scenesolver/server/storage"
)

// Default number of analyses returned by the list API
const defaultListLimit = 50

// writeJSON is www.SendJSON, but with our JSON error shape on failure
func writeJSON(w http.ResponseWriter, obj any) {
	b, err := json.Marshal(obj)
	if err != nil {
		sendError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func (s *Server) getAnalysis(w http.ResponseWriter, params httprouter.Params) *analysisdb.Analysis {
	id := www.ParseID(params.ByName("id"))
	if id <= 0 {
		sendError(w, http.StatusBadRequest, "Invalid analysis id")
		return nil
	}
	rec, err := s.db.Get(id)
	if errors.Is(err, analysisdb.ErrNotFound) {
		sendError(w, http.StatusNotFound, err.Error())
		return nil
	}
	www.Check(err)
	return rec
}

func (s *Server) httpListAnalyses(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = defaultListLimit
	}
	label := www.QueryValue(r, "label")
	if label != "" && !nn.SceneClass(label).IsValid() {
		sendError(w, http.StatusBadRequest, "Unknown label '"+label+"'")
		return
	}
	records, err := s.db.List(limit, label)
	www.Check(err)
	www.SendJSON(w, records)
}

func (s *Server) httpGetAnalysis(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if rec := s.getAnalysis(w, params); rec != nil {
		www.SendJSON(w, rec)
	}
}

func (s *Server) httpGetPreview(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	rec := s.getAnalysis(w, params)
	if rec == nil {
		return
	}
	if rec.Preview == "" || s.previews == nil {
		sendError(w, http.StatusNotFound, "Analysis has no preview")
		return
	}
	f, err := s.previews.Open(r.Context(), rec.Preview)
	if errors.Is(err, storage.ErrNotFound) {
		sendError(w, http.StatusNotFound, "Preview has been deleted")
		return
	}
	www.Check(err)
	defer f.Reader.Close()
	// Previews are never modified after they are written
	www.CacheImmutable(w)
	w.Header().Set("Content-Type", f.ContentType)
	io.Copy(w, f.Reader)
}
