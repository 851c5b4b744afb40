package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/pkg/validate"
)

const maxBodyBytes = 1 << 20

// readBody buffers the request body so it can be decoded twice: once for the
// action envelope, once for the selected variant.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
	}
	return raw, nil
}

// actionOf reads the discriminator of an action-tagged body.
func actionOf(body []byte) (string, error) {
	var env struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Action == "" {
		return "", fmt.Errorf("action is required: %w", domain.ErrBadRequest)
	}
	return env.Action, nil
}

// decodeVariant unmarshals body into v and validates it.
func decodeVariant(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	return nil
}

// decodeJSON is decodeVariant for bodies without an action tag.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeVariant(body, v)
}
