package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/septivank/sensor-telemetry/internal/registry"
	"github.com/septivank/sensor-telemetry/internal/webutil"
)

type registerDeviceRequest struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
}

type registerDeviceResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type deviceResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) error {
	owner, err := requesterID(r)
	if err != nil {
		return err
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		return webutil.ErrBadRequestWrap("Invalid request body", err)
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return webutil.ErrBadRequest("Device ID is required")
	}

	device, err := s.registry.Register(r.Context(), req.DeviceID, owner, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrAlreadyRegistered):
			return webutil.ErrConflictWrap("Device already registered", err)
		case errors.Is(err, registry.ErrInvalidDevice):
			return webutil.ErrBadRequestWrap("Invalid device ID", err)
		default:
			return err
		}
	}

	return webutil.RespondWithJSON(w, http.StatusOK, registerDeviceResponse{
		Message: "Device registered",
		ID:      device.ID,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) error {
	owner, err := requesterID(r)
	if err != nil {
		return err
	}

	devices, err := s.registry.ListDevices(r.Context(), owner)
	if err != nil {
		return err
	}

	resp := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, deviceResponse{ID: d.ID, Name: d.Name, Status: string(d.Status)})
	}
	return webutil.RespondWithJSON(w, http.StatusOK, resp)
}
