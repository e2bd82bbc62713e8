package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Nombres de error según RFC 6749 §5.2 / §4.1.2.1.
const (
	ErrNameInvalidRequest          = "invalid_request"
	ErrNameInvalidClient           = "invalid_client"
	ErrNameInvalidGrant            = "invalid_grant"
	ErrNameUnauthorizedClient      = "unauthorized_client"
	ErrNameUnsupportedGrantType    = "unsupported_grant_type"
	ErrNameUnsupportedResponseType = "unsupported_response_type"
	ErrNameAccessDenied            = "access_denied"
	ErrNameInvalidToken            = "invalid_token"
	ErrNameServerError             = "server_error"
)

// Error es el error tipado que el engine lanza: nombre protocolar, mensaje
// y status HTTP sugerido. El responder lo traduce al body OAuth2.
type Error struct {
	Name        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Description)
}

// NewError crea un error de protocolo con status explícito.
func NewError(name, description string, status int) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Name: name, Description: description, Status: status}
}

func invalidRequest(desc string) *Error {
	return NewError(ErrNameInvalidRequest, desc, http.StatusBadRequest)
}

func invalidGrant(desc string) *Error {
	return NewError(ErrNameInvalidGrant, desc, http.StatusBadRequest)
}

func invalidClient(desc string) *Error {
	return NewError(ErrNameInvalidClient, desc, http.StatusUnauthorized)
}

func unsupportedGrantType(desc string) *Error {
	return NewError(ErrNameUnsupportedGrantType, desc, http.StatusBadRequest)
}

func invalidToken(desc string) *Error {
	return NewError(ErrNameInvalidToken, desc, http.StatusUnauthorized)
}

func serverError(err error) *Error {
	return NewError(ErrNameServerError, err.Error(), http.StatusInternalServerError)
}

// AsError extrae el *Error tipado si err lo es; cualquier otro error se
// envuelve como server_error (ok=false en ese caso).
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return serverError(err), false
}
