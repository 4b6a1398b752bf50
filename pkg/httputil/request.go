package httputil

import (
	"encoding/json"
	"io"
	"net/http"
)

// MaxBodyBytes caps how much of a request body DecodeJSON reads.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes at most MaxBodyBytes of the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(v)
}
