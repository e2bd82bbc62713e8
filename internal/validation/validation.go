// Package validation chequea los parámetros de los requests OAuth2 contra
// schemas declarativos, antes de tocar engine o storage. El resultado es
// binario: un request inválido se rechaza entero, el detalle queda en los
// logs de debug y nunca viaja al cliente.
package validation

import (
	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/observability/logger"
)

// Matcher valida un valor individual de parámetro.
type Matcher interface {
	Match(value string, present bool) bool
}

// Schema mapea nombre de parámetro a su matcher. Los parámetros que no
// figuran en el schema se ignoran.
type Schema map[string]Matcher

type nonEmpty struct{}

func (nonEmpty) Match(value string, present bool) bool {
	return present && value != ""
}

// NonEmptyString exige presencia y valor no vacío.
func NonEmptyString() Matcher { return nonEmpty{} }

type optional struct{ inner Matcher }

func (o optional) Match(value string, present bool) bool {
	if !present {
		return true
	}
	return o.inner.Match(value, present)
}

// Optional acepta la ausencia; si el parámetro viene, aplica el matcher.
func Optional(m Matcher) Matcher { return optional{inner: m} }

type literal struct{ want string }

func (l literal) Match(value string, present bool) bool {
	return present && value == l.want
}

// Literal exige exactamente el valor dado.
func Literal(want string) Matcher { return literal{want: want} }

// Validate aplica el schema sobre los parámetros. Con params nil el request
// es inválido. Con debug, cada clave que falla se loguea individualmente.
func Validate(params map[string]string, schema Schema, debug bool) bool {
	log := logger.Named("validation")
	if params == nil {
		if debug {
			log.Debug("validation failed: no parameters")
		}
		return false
	}
	valid := true
	for key, matcher := range schema {
		value, present := params[key]
		if !matcher.Match(value, present) {
			valid = false
			if debug {
				log.Debug("validation failed", zap.String("key", key), zap.Bool("present", present))
			}
		}
	}
	return valid
}
