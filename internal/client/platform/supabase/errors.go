package supabase

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// apiError covers both error shapes: PostgREST sends a string code and a
// message, GoTrue sends a numeric code with msg or the OAuth error pair.
type apiError struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (e apiError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	var s string
	if json.Unmarshal(e.Code, &s) == nil {
		return s
	}
	return e.Error
}

func (e apiError) message() string {
	for _, m := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// mapStatus converts an error response. On auth endpoints a client error is
// a rejected credential and its message is kept verbatim.
func mapStatus(status int, body []byte, auth bool) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	msg := ae.message()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	if auth {
		switch status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return &common.AuthenticationError{Message: msg}
		}
	}
	return &common.RemoteError{Status: status, Code: ae.code(), Message: msg}
}
