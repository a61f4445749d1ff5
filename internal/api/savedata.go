package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/septivank/sensor-telemetry/internal/ingest"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/webutil"
)

const msgInvalidData = "Invalid data"

type saveDataRequest struct {
	DeviceID string          `json:"deviceId"`
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
}

// handleSaveData stores one reading through the same pipeline the broker link
// uses. Responses carry {"message": ...} for compatibility with existing callers.
func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request) error {
	arrival := s.now()

	var req saveDataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		return webutil.ErrBadRequestWrap(msgInvalidData, err).WithKey("message")
	}

	deviceID := registry.NormalizeDeviceID(req.DeviceID)
	raw, ok := rawValue(req.Value)
	if deviceID == "" || strings.TrimSpace(req.Type) == "" || !ok {
		return webutil.ErrBadRequest(msgInvalidData).WithKey("message")
	}

	err := s.ingester.Ingest(r.Context(), deviceID, req.Type, raw, arrival)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrBadValue), errors.Is(err, ingest.ErrUnknownType):
			return webutil.ErrBadRequestWrap(msgInvalidData, err).WithKey("message")
		case errors.Is(err, ingest.ErrUnknownDevice):
			return webutil.ErrNotFoundWrap("Device not registered", err).WithKey("message")
		case errors.Is(err, ingest.ErrStorageUnavailable):
			return webutil.ErrServiceUnavailableWrap("Storage unavailable", err).WithKey("message")
		default:
			return err
		}
	}

	return webutil.RespondWithMessage(w, http.StatusOK, "Data saved")
}

// rawValue accepts a JSON number or string and returns its text for the pipeline to parse
func rawValue(value json.RawMessage) (string, bool) {
	if len(value) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, true
	}

	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		return n.String(), true
	}

	return "", false
}
