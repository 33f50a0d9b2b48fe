package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// internalErrorBody is what a client sees when a reply cannot be encoded.
var internalErrorBody = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// writeJSON replies with body encoded as JSON. Encoding happens before any
// header is written so a bad body degrades to a 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("api.writeJSON: unencodable body", "status", status, "type", fmt.Sprintf("%T", body), "error", err)
		payload, status = internalErrorBody, http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Debug("api.writeJSON: client went away", "status", status, "error", err)
	}
}
