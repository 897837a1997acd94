package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes caps JSON request bodies. Event, participant and filter payloads are small.
const MaxBodyBytes = 1 << 20

// Normalizer is implemented by request bodies that clean their fields (trimming names,
// lowercasing emails, dropping duplicate IDs) before they are validated.
type Normalizer interface {
	Normalize()
}

// Validator is implemented by request bodies with field rules. Validate returns one message
// per broken rule; nil or empty means valid.
type Validator interface {
	Validate() []string
}

// DecodeAndValidate decodes a required JSON body into dest, then normalizes and validates
// it. On failure it writes a 400 (413 for an oversized body) and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	return decode(w, r, dest, false)
}

// DecodeOptional is DecodeAndValidate for endpoints whose body may be omitted entirely. An
// empty body leaves dest at its zero value.
func DecodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	return decode(w, r, dest, true)
}

func decode(w http.ResponseWriter, r *http.Request, dest any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dest)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		if !optional {
			WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "request body is required")
			return false
		}
	case errors.As(err, &tooLarge):
		WriteJSONError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return false
	case err != nil:
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return false
	case dec.More():
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "request body must hold a single JSON object")
		return false
	}

	if n, ok := dest.(Normalizer); ok {
		n.Normalize()
	}
	if v, ok := dest.(Validator); ok {
		if errs := v.Validate(); len(errs) > 0 {
			WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, strings.Join(errs, "; "))
			return false
		}
	}
	return true
}
