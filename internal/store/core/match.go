package core

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Matches evalúa el filtro contra un documento ya decodificado (map JSON).
// Igualdad por campo; si el valor del documento es un array, matchea por
// pertenencia. Lo usan los backends que filtran en memoria (memory, redis).
func Matches(doc map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if arr, isArr := got.([]any); isArr {
			if !containsValue(arr, want) {
				return false
			}
			continue
		}
		if !equalValue(got, want) {
			return false
		}
	}
	return true
}

func containsValue(arr []any, want any) bool {
	for _, v := range arr {
		if equalValue(v, want) {
			return true
		}
	}
	return false
}

// equalValue compara valores normalizando por JSON, porque los documentos
// decodificados traen float64 para cualquier número y los filtros pueden
// traer int o time.Time.
func equalValue(got, want any) bool {
	if got == want {
		return true
	}
	gb, err1 := json.Marshal(got)
	wb, err2 := json.Marshal(want)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(gb) == string(wb)
}

// EnsureID garantiza que el documento tenga _id, generándolo si falta.
// Retorna el _id resultante.
func EnsureID(doc Doc) string {
	if v, ok := doc["_id"].(string); ok && v != "" {
		return v
	}
	id := uuid.NewString()
	doc["_id"] = id
	return id
}

// CloneDoc copia superficialmente un documento.
func CloneDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
