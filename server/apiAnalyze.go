package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/scenesolver/scenesolver/pkg/fusion"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/server/analysis"
	"github.com/scenesolver/scenesolver/server/analysisdb"
)

// The only error message that a failed analysis ever shows to the client.
// Details are logged.
const internalErrorMessage = "An internal error occurred during AI model processing."

// Multipart bodies up to this size are held in memory
const multipartMemory = 8 * 1024 * 1024

type analyzeResponseJSON struct {
	*fusion.IncidentResult
	ID int64 `json:"id,omitempty"` // Zero if the analysis could not be saved to history
}

func (s *Server) httpAnalyze(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			sendError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
		} else {
			sendError(w, http.StatusBadRequest, "Expected a multipart form with a 'media' file")
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("media")
	if err != nil {
		sendError(w, http.StatusBadRequest, "No media file provided")
		return
	}
	defer file.Close()
	if header.Size == 0 {
		sendError(w, http.StatusBadRequest, "Media file is empty")
		return
	}

	kind, contentType, err := analysis.KindOf(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		sendError(w, http.StatusUnsupportedMediaType, "Unsupported media type '"+contentType+"'")
		return
	}

	s.Log.Infof("Analyzing %v '%v' (%v, %v bytes)", kind, header.Filename, contentType, header.Size)
	ctx := r.Context()
	var outcome *analysis.Outcome
	var imageData []byte
	switch kind {
	case analysis.MediaImage:
		imageData, err = io.ReadAll(file)
		if err == nil {
			outcome, err = s.analyzer.Analyze(ctx, &analysis.ImageMedia{Image: nn.Image{Data: imageData, ContentType: contentType}})
		}
	case analysis.MediaVideo:
		outcome, err = s.analyzeVideoUpload(ctx, file, header, contentType)
	}
	if err != nil {
		s.Log.Errorf("Analysis of '%v' failed: %v", header.Filename, err)
		sendError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	s.Log.Infof("Analysis of '%v' complete in %v: %v (%v%%)", header.Filename, outcome.Duration.Round(time.Millisecond),
		outcome.Result.FinalLabel, outcome.Result.ConfidencePercent)

	rec := analysisdb.MakeAnalysis(outcome, contentType, header.Filename)
	if s.previews != nil && imageData != nil {
		// A missing preview is not worth failing the request over
		if key, err := s.previews.Save(ctx, imageData, outcome.Unit.Detections); err != nil {
			s.Log.Warnf("Failed to save preview of '%v': %v", header.Filename, err)
		} else {
			rec.Preview = key
		}
	}
	s.record(rec)

	writeJSON(w, &analyzeResponseJSON{
		IncidentResult: outcome.Result,
		ID:             rec.ID,
	})
}

// The uploaded video is copied to a scratch file, because the decoder needs a seekable file.
// The scratch file is deleted when analysis finishes, whether it succeeds or not.
func (s *Server) analyzeVideoUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader, contentType string) (*analysis.Outcome, error) {
	var outcome *analysis.Outcome
	err := s.tempFiles.With(filepath.Ext(header.Filename), file, func(path string) error {
		var err error
		outcome, err = s.analyzer.Analyze(ctx, &analysis.VideoMedia{Filename: path, ContentType: contentType})
		return err
	})
	return outcome, err
}

// record saves an analysis to history, and purges old history
func (s *Server) record(rec *analysisdb.Analysis) {
	if err := s.db.Save(rec); err != nil {
		s.Log.Errorf("%v", err)
		return
	}
	previews, err := s.db.Purge()
	if err != nil {
		s.Log.Warnf("Failed to purge old analyses: %v", err)
	}
	if s.previews != nil && len(previews) != 0 {
		s.previews.Delete(context.Background(), previews)
	}
}
