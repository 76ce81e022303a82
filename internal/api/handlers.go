package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/compliance"
	"github.com/sells-group/gis-compliance/internal/model"
	"github.com/sells-group/gis-compliance/internal/pipeline"
	"github.com/sells-group/gis-compliance/internal/session"
)

type nearRequest struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Miles float64 `json:"miles"`
}

type auditRequest struct {
	Where         string       `json:"where"`
	OutFields     []string     `json:"out_fields"`
	Near          *nearRequest `json:"near"`
	ThresholdSqMi float64      `json:"threshold_sqmi"`
	SaveAs        string       `json:"save_as"`
	User          string       `json:"user"`
}

type auditResponse struct {
	Report    *model.ComplianceReport `json:"report"`
	Areas     model.RegionAreaRecords `json:"areas"`
	Attempts  int                     `json:"attempts"`
	SessionID string                  `json:"session_id,omitempty"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.Auditor == nil {
		writeError(w, http.StatusInternalServerError, "audits are not configured")
		return
	}

	var req auditRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThresholdSqMi < 0 {
		writeError(w, http.StatusBadRequest, "threshold_sqmi must be positive")
		return
	}

	var spatial *arcgis.SpatialFilter
	if req.Near != nil {
		if req.Near.Lon < -180 || req.Near.Lon > 180 || req.Near.Lat < -90 || req.Near.Lat > 90 {
			writeError(w, http.StatusBadRequest, "near: coordinates out of range")
			return
		}
		if req.Near.Miles <= 0 {
			writeError(w, http.StatusBadRequest, "near.miles must be positive")
			return
		}
		spatial = &arcgis.SpatialFilter{
			Point:         arcgis.Point{Lon: req.Near.Lon, Lat: req.Near.Lat},
			DistanceMiles: req.Near.Miles,
		}
	}

	threshold := req.ThresholdSqMi
	if threshold == 0 {
		threshold = s.ThresholdSqMi
	}
	res, err := s.Auditor.Audit(r.Context(), pipeline.AuditRequest{
		Filter:        arcgis.AttributeFilter{Where: req.Where, OutFields: req.OutFields},
		Spatial:       spatial,
		ThresholdSqMi: threshold,
		Source:        s.Source,
		SaveAs:        req.SaveAs,
		User:          req.User,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, auditResponse{
		Report:    res.Report,
		Areas:     res.Areas,
		Attempts:  res.Attempts,
		SessionID: res.SessionID,
	})
}

// handleCompliance evaluates a GeoJSON FeatureCollection posted in the body.
func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	threshold := s.ThresholdSqMi
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a positive number")
			return
		}
		threshold = v
	}
	if threshold <= 0 {
		threshold = compliance.DefaultThresholdSqMi
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	fc, err := area.DecodeFeatureCollection(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := area.ComputeAreas(fc, s.Projector)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	writeJSON(w, http.StatusOK, compliance.Evaluate(records, threshold, compliance.WithSource(source)))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeError(w, http.StatusInternalServerError, "no session store configured")
		return
	}
	keys, err := s.Sessions.List(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": keys})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeError(w, http.StatusInternalServerError, "no session store configured")
		return
	}
	sess, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	var (
		transport *arcgis.TransportError
		protocol  *arcgis.ProtocolError
		decode    *arcgis.DecodeError
		input     *area.InputError
		schema    *area.SchemaError
		geometry  *area.GeometryError
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &transport), errors.As(err, &protocol), errors.As(err, &decode):
		return http.StatusBadGateway
	case errors.As(err, &input), errors.As(err, &schema), errors.As(err, &geometry):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := zap.L().With(zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed")
	} else {
		log.Warn("api: request rejected")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorReport(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}
