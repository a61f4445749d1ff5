package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/septivank/sensor-telemetry/internal/query"
	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/webutil"
	"github.com/septivank/sensor-telemetry/tools/timeparser"
)

type readingResponse struct {
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleQueryData(w http.ResponseWriter, r *http.Request) error {
	requester, err := requesterID(r)
	if err != nil {
		return err
	}

	params := r.URL.Query()
	deviceID := registry.NormalizeDeviceID(params.Get("deviceId"))
	if deviceID == "" {
		return webutil.ErrBadRequest("Device ID is required")
	}

	var window query.Window
	if v := params.Get("from"); v != "" {
		if window.From, err = timeparser.ParseQueryTime(v); err != nil {
			return webutil.ErrBadRequestWrap("Invalid from parameter", err)
		}
	}
	if v := params.Get("to"); v != "" {
		if window.To, err = timeparser.ParseQueryTime(v); err != nil {
			return webutil.ErrBadRequestWrap("Invalid to parameter", err)
		}
	}

	limit := 0
	if v := params.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return webutil.ErrBadRequestWrap("Invalid limit parameter", err)
		}
	}

	readings, err := s.queries.QueryReadings(r.Context(), deviceID, requester, window, limit)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrForbidden):
			return webutil.ErrForbiddenWrap("", err)
		case errors.Is(err, query.ErrInvalidWindow):
			return webutil.ErrBadRequestWrap("Invalid time window", err)
		case errors.Is(err, query.ErrTimeout):
			return webutil.ErrGatewayTimeoutWrap("Query timed out", err)
		default:
			return err
		}
	}

	resp := make([]readingResponse, 0, len(readings))
	for _, reading := range readings {
		resp = append(resp, readingResponse{
			Type:      string(reading.SensorType),
			Value:     reading.Value,
			Timestamp: reading.Timestamp.UTC(),
		})
	}
	return webutil.RespondWithJSON(w, http.StatusOK, resp)
}
