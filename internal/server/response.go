package server

import (
	"encoding/json"
	"net/http"
)

type responseMessage struct {
	Message string `json:"message"`
}

func httpResponse(w http.ResponseWriter, msg string, code int) {
	v, _ := json.Marshal(responseMessage{
		Message: msg,
	})

	httpResponseJSONByte(w, v, code)
}

func httpResponseJSON(w http.ResponseWriter, msg any, code int) {
	v, _ := json.Marshal(msg)

	httpResponseJSONByte(w, v, code)
}

func httpResponseJSONByte(w http.ResponseWriter, msg []byte, code int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)
	w.Write(msg)
}

// writeNDJSON writes one newline-delimited JSON record and flushes it so
// clients see events as they happen. It reports whether the write reached
// the client.
func writeNDJSON(w http.ResponseWriter, flusher http.Flusher, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return true
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return false
	}
	flusher.Flush()

	return true
}
