package transport

import (
	"encoding/json"
	"log"
	"net/http"
)

type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SendServerRes writes a pre-encoded JSON body. For statuses of 400 and above the
// internal error is logged; it is never written to the client.
func SendServerRes(w http.ResponseWriter, body []byte, status int, err error) {
	if status >= 400 {
		msg := "ERR: " + string(body)
		if err != nil {
			msg += " || Internal error msg: " + err.Error()
		}
		log.Println(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, writeErr := w.Write(body); writeErr != nil {
		log.Println("ERR: error writing response:", writeErr)
	}
}

// SendJSON encodes v and sends it with the given status.
func SendJSON(w http.ResponseWriter, v any, status int) {
	body, err := json.Marshal(v)
	if err != nil {
		SendServerRes(w, []byte(`{"success":false,"error":"failed to encode response"}`), http.StatusInternalServerError, err)
		return
	}
	SendServerRes(w, body, status, nil)
}

// SendJSONError sends {"success":false,"error":msg}. err is logged only.
func SendJSONError(w http.ResponseWriter, msg string, status int, err error) {
	body, _ := json.Marshal(ErrorBody{Success: false, Error: msg})
	SendServerRes(w, body, status, err)
}
