// Package httpx concentra la escritura de respuestas HTTP del authorization
// server: JSON de éxito y el cuerpo de error OAuth2 con su forma fija.
package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/observability/logger"
)

// errorBody es la forma fija del error OAuth2. Los campos ausentes se
// serializan como null explícito, nunca se omiten.
type errorBody struct {
	Error            *string `json:"error"`
	ErrorDescription *string `json:"error_description"`
	ErrorURI         *string `json:"error_uri"`
	State            *string `json:"state"`
}

// ErrorOptions arma una respuesta de error OAuth2.
type ErrorOptions struct {
	Error       string
	Description string
	URI         string
	Status      int
	State       string

	// Debug habilita el log del error original; OriginalError nunca viaja
	// en la respuesta.
	Debug         bool
	OriginalError error
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ErrorResponse escribe el error OAuth2. Sin status explícito responde 500.
func ErrorResponse(w http.ResponseWriter, opts ErrorOptions) {
	status := opts.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if opts.Debug && opts.OriginalError != nil {
		logger.Named("http").Debug("request failed",
			zap.String("error", opts.Error),
			zap.Int("status", status),
			logger.Err(opts.OriginalError))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:            strPtr(opts.Error),
		ErrorDescription: strPtr(opts.Description),
		ErrorURI:         strPtr(opts.URI),
		State:            strPtr(opts.State),
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
