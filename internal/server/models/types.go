package models

import (
	"encoding/json"
	"net"

	"github.com/AvengeMedia/nmmirror/internal/log"
)

type Request struct {
	ID     interface{}            `json:"id,omitempty"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Response is the envelope of every reply. Exactly one of Result and Error
// is set.
type Response[T any] struct {
	ID     interface{} `json:"id,omitempty"`
	Result *T          `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func RespondError(conn net.Conn, id interface{}, errMsg string) {
	log.Errorf("API error: id=%v error=%s", id, errMsg)
	resp := Response[any]{ID: id, Error: errMsg}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debugf("failed to write error response: %v", err)
	}
}

func Respond[T any](conn net.Conn, id interface{}, result T) {
	resp := Response[T]{ID: id, Result: &result}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}
