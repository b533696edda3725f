package web

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/sweeney/climate-ingest/internal/logic"
)

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Error string `json:"error"`
}

// sampleJSON is used when a sample carries no raw payload.
type sampleJSON struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// sampleBody returns the message exactly as received.
func sampleBody(sample logic.Sample) []byte {
	if len(sample.Raw) > 0 {
		return sample.Raw
	}
	b, _ := json.Marshal(sampleJSON{
		Temperature: logic.Finite(sample.Temperature),
		Humidity:    logic.Finite(sample.Humidity),
	})
	return b
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	writeRaw(w, code, b)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	b, _ := json.Marshal(ErrorJSON{Error: msg})
	writeRaw(w, code, b)
}
