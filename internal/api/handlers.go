package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/classifier"
	"github.com/sells-group/veracity/internal/inference"
	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/store"
)

const (
	maxBodyBytes       = 1 << 20
	noCriticalCasesMsg = "No critical cases yet."
)

type predictRequest struct {
	Text string `json:"text"`
}

type criticalCasesResponse struct {
	Cases   []model.CriticalCase `json:"cases"`
	Message string               `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.deps.Service.Predict(r.Context(), inference.Input{Text: req.Text, ReceivedAt: received})
	if err != nil {
		var (
			gwErr *inference.GatewayError
			pErr  *inference.PersistError
		)
		switch {
		case errors.Is(err, inference.ErrEmptyText):
			writeError(w, http.StatusBadRequest, "text is required")
		case errors.As(err, &gwErr):
			zap.L().Error("api: classification failed",
				zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
			writeError(w, http.StatusBadGateway, "classification failed")
		case errors.As(err, &pErr):
			zap.L().Error("api: prediction log failed",
				zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to log prediction")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	rep, ok, err := s.deps.Aggregator.Generate(r.Context())
	if err != nil {
		zap.L().Error("api: report generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, model.NoDataResponse{Status: model.ReportStatusNoData})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCriticalCases(w http.ResponseWriter, r *http.Request) {
	cases, err := store.Collect(s.deps.Store.CriticalCases(r.Context()))
	if err != nil {
		zap.L().Error("api: read critical cases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read critical cases")
		return
	}

	resp := criticalCasesResponse{Cases: cases}
	if len(cases) == 0 {
		resp.Cases = []model.CriticalCase{}
		resp.Message = noCriticalCasesMsg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	md, err := classifier.LoadMetadata(s.deps.MetadataPath)
	if errors.Is(err, classifier.ErrNoMetadata) {
		writeError(w, http.StatusNotFound, "model metadata not configured")
		return
	}
	if err != nil {
		zap.L().Error("api: load model metadata", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load model metadata")
		return
	}
	writeJSON(w, http.StatusOK, md)
}
