package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - OAUTH2
// =================================================================================

// ClientID crea un campo para el client_id OAuth2.
func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

// GrantType crea un campo para el grant_type solicitado.
func GrantType(v string) zap.Field {
	return zap.String("grant_type", v)
}

// UserID crea un campo para el ID del resource owner.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// Collection crea un campo para el nombre de una colección del store.
func Collection(v string) zap.Field {
	return zap.String("collection", v)
}

// OAuthError crea un campo para el nombre del error OAuth2 respondido.
func OAuthError(v string) zap.Field {
	return zap.String("oauth_error", v)
}

// Err crea un campo para errores internos.
func Err(err error) zap.Field {
	return zap.Error(err)
}
