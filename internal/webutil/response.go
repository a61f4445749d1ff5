package webutil

import (
	"encoding/json"
	"net/http"
)

const (
	HeaderContentType   = "Content-Type"
	ContentTypeJSONUTF8 = "application/json; charset=utf-8"
)

// RespondWithJSON writes payload as a JSON response
func RespondWithJSON(w http.ResponseWriter, status int, payload any) error {
	response, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	w.WriteHeader(status)
	_, _ = w.Write(response)
	return nil
}

// RespondWithMessage writes {"message": message}
func RespondWithMessage(w http.ResponseWriter, status int, message string) error {
	return RespondWithJSON(w, status, map[string]string{"message": message})
}

func respondInternalError(w http.ResponseWriter) {
	w.Header().Set(HeaderContentType, ContentTypeJSONUTF8)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
}
