package validation

// Schemas de los endpoints del authorization server. Cada etapa del flujo
// valida el request completo de nuevo; ninguna confía en la anterior.

// AuthorizeGet valida la carga inicial del diálogo de autorización.
func AuthorizeGet() Schema {
	return Schema{
		"response_type": NonEmptyString(),
		"client_id":     NonEmptyString(),
		"redirect_uri":  NonEmptyString(),
		"scope":         Optional(NonEmptyString()),
		"state":         Optional(NonEmptyString()),
	}
}

// AuthorizePost valida la decisión del resource owner (etapas 2 y 3).
// token es el login token del usuario; allowed distingue aprobación de
// denegación explícita.
func AuthorizePost() Schema {
	return Schema{
		"token":         NonEmptyString(),
		"client_id":     NonEmptyString(),
		"redirect_uri":  NonEmptyString(),
		"response_type": NonEmptyString(),
		"state":         Optional(NonEmptyString()),
		"scope":         Optional(NonEmptyString()),
		"allowed":       Optional(NonEmptyString()),
	}
}

// AccessTokenPost valida el intercambio code-por-token.
func AccessTokenPost() Schema {
	return Schema{
		"grant_type":    NonEmptyString(),
		"code":          NonEmptyString(),
		"redirect_uri":  NonEmptyString(),
		"client_id":     NonEmptyString(),
		"client_secret": NonEmptyString(),
		"state":         Optional(NonEmptyString()),
	}
}

// RefreshTokenPost valida la renovación por refresh token. Las credenciales
// del client pueden venir por body o por Basic auth, por eso acá son
// opcionales.
func RefreshTokenPost() Schema {
	return Schema{
		"grant_type":    Literal("refresh_token"),
		"refresh_token": NonEmptyString(),
		"client_id":     Optional(NonEmptyString()),
		"client_secret": Optional(NonEmptyString()),
	}
}
