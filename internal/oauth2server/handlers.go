package oauth2server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/leaonline/oauth2-server/internal/consent"
	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/httpx"
	"github.com/leaonline/oauth2-server/internal/metrics"
	"github.com/leaonline/oauth2-server/internal/observability/logger"
	"github.com/leaonline/oauth2-server/internal/validation"
)

// requestParams unifica query string y body en un solo mapa de parámetros.
// Los bodies urlencoded y JSON se aceptan por igual; ante conflicto gana el
// body. Así un POST con parámetros en la query (clients que no arman el body
// urlencoded) sigue siendo procesable.
func requestParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if r.Method != http.MethodPost {
		return params
	}

	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	case strings.Contains(ct, "application/json"):
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for key, value := range body {
				switch v := value.(type) {
				case string:
					params[key] = v
				case bool:
					params[key] = strconv.FormatBool(v)
				case float64:
					params[key] = strconv.FormatFloat(v, 'f', -1, 64)
				}
			}
		}
	}
	return params
}

// recoverer es la barrera exterior: cualquier pánico del pipeline se vuelve
// un server_error genérico. El detalle queda solo en los logs de debug.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.RequestErrorsTotal.WithLabelValues(engine.ErrNameServerError).Inc()
				httpx.ErrorResponse(w, httpx.ErrorOptions{
					Error:         engine.ErrNameServerError,
					Description:   "an internal server error occurred",
					Status:        http.StatusInternalServerError,
					Debug:         s.opts.Debug,
					OriginalError: fmt.Errorf("panic: %v", rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe registra duración y status por ruta.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.RequestDuration.
			WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).
			Observe(elapsed.Seconds())
		s.log.Debug("request handled",
			logger.Method(r.Method), logger.Path(r.URL.Path),
			logger.Status(ww.Status()), logger.Duration(elapsed))
	})
}

// respondError escribe el error protocolar y cuenta la métrica.
func (s *Server) respondError(w http.ResponseWriter, opts httpx.ErrorOptions) {
	if opts.Error != "" {
		metrics.RequestErrorsTotal.WithLabelValues(opts.Error).Inc()
	}
	opts.Debug = s.opts.Debug
	httpx.ErrorResponse(w, opts)
}

// resolveClientForAuthorize corre los chequeos compartidos de las etapas del
// diálogo de autorización: response_type soportado, client registrado y
// redirect_uri en la allow-list. Escribe el error y retorna nil si algo falla.
func (s *Server) resolveClientForAuthorize(w http.ResponseWriter, r *http.Request, params map[string]string) *engine.Client {
	state := params["state"]

	if state == "" && !s.engine.Options().AllowEmptyState {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameInvalidRequest,
			Description: "Missing parameter: state",
			Status:      http.StatusBadRequest,
		})
		return nil
	}

	responseType := params["response_type"]
	if responseType != "code" && responseType != "token" {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameUnsupportedResponseType,
			Description: "response type " + responseType + " is not supported",
			Status:      http.StatusUnsupportedMediaType,
			State:       state,
		})
		return nil
	}

	client, err := s.model.GetClient(r.Context(), params["client_id"], params["client_secret"])
	if err != nil {
		s.respondError(w, httpx.ErrorOptions{
			Error:         engine.ErrNameServerError,
			Description:   "an internal server error occurred",
			Status:        http.StatusInternalServerError,
			State:         state,
			OriginalError: err,
		})
		return nil
	}
	if client == nil {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameUnauthorizedClient,
			Description: "client is not registered",
			Status:      http.StatusUnauthorized,
			State:       state,
		})
		return nil
	}

	redirectURI := params["redirect_uri"]
	if !client.HasRedirectURI(redirectURI) {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameInvalidRequest,
			Description: fmt.Sprintf("Invalid redirection uri %s", redirectURI),
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return nil
	}
	return client
}

// handleAuthorizeGet es la etapa inicial: requests malformados se rechazan
// acá con una página de error directa, nunca vía redirect, para que el
// endpoint no sirva de open redirector.
func (s *Server) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	state := params["state"]

	if !validation.Validate(params, validation.AuthorizeGet(), s.opts.Debug) {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameInvalidRequest,
			Description: "one or more request parameters are invalid",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}
	if s.resolveClientForAuthorize(w, r, params) == nil {
		return
	}
	// todo válido: el host renderiza el diálogo de consentimiento
	w.WriteHeader(http.StatusOK)
}

// handleAuthorizePost procesa la decisión del resource owner y, si todo
// valida, emite el código y redirige al client. Los inputs se revalidan
// completos: el round-trip por el browser es hostil por definición.
func (s *Server) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := requestParams(r)
	state := params["state"]

	if !validation.Validate(params, validation.AuthorizePost(), s.opts.Debug) {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameInvalidRequest,
			Description: "one or more request parameters are invalid",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}
	client := s.resolveClientForAuthorize(w, r, params)
	if client == nil {
		return
	}

	user, err := s.users.ByLoginToken(ctx, params["token"])
	if err != nil {
		s.respondError(w, httpx.ErrorOptions{
			Error:         engine.ErrNameServerError,
			Description:   "an internal server error occurred",
			Status:        http.StatusInternalServerError,
			State:         state,
			OriginalError: err,
		})
		return
	}
	if user == nil {
		metrics.AuthorizationsTotal.WithLabelValues("denied").Inc()
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameAccessDenied,
			Description: "user is not authenticated",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}

	allowed := params["allowed"] != "false"
	ok, err := s.consents.IsValid(ctx, s, consent.Request{
		UserID:      user.ID,
		ClientID:    client.ClientID,
		RedirectURI: params["redirect_uri"],
		Scope:       params["scope"],
		Allowed:     allowed,
	})
	if err != nil {
		s.respondError(w, httpx.ErrorOptions{
			Error:         engine.ErrNameServerError,
			Description:   "an internal server error occurred",
			Status:        http.StatusInternalServerError,
			State:         state,
			OriginalError: err,
		})
		return
	}
	if !ok {
		metrics.AuthorizationsTotal.WithLabelValues("denied").Inc()
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameAccessDenied,
			Description: "authorization rejected by consent policy",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}

	if err := s.users.SetClientAuthorization(ctx, user.ID, client.ClientID, allowed); err != nil {
		s.respondError(w, httpx.ErrorOptions{
			Error:         engine.ErrNameServerError,
			Description:   "an internal server error occurred",
			Status:        http.StatusInternalServerError,
			State:         state,
			OriginalError: err,
		})
		return
	}
	if !allowed {
		metrics.AuthorizationsTotal.WithLabelValues("denied").Inc()
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameAccessDenied,
			Description: "access denied by the resource owner",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}

	code, err := s.engine.Authorize(ctx, engine.AuthorizeRequest{
		ClientID:    params["client_id"],
		RedirectURI: params["redirect_uri"],
		Scope:       params["scope"],
		State:       state,
		User:        engine.User{ID: user.ID},
	})
	if err != nil {
		metrics.AuthorizationsTotal.WithLabelValues("error").Inc()
		engErr, _ := engine.AsError(err)
		s.respondError(w, httpx.ErrorOptions{
			Error:         engErr.Name,
			Description:   engErr.Description,
			Status:        engErr.Status,
			State:         state,
			OriginalError: err,
		})
		return
	}

	metrics.AuthorizationsTotal.WithLabelValues("granted").Inc()
	location := authorizeRedirect(params["redirect_uri"], code.AuthorizationCode, user.ID, state)
	s.log.Debug("authorization granted",
		logger.ClientID(client.ClientID), logger.UserID(user.ID))
	http.Redirect(w, r, location, http.StatusFound)
}

// authorizeRedirect arma el destino del 302 con code, user y state.
func authorizeRedirect(redirectURI, code, userID, state string) string {
	var b strings.Builder
	b.WriteString(redirectURI)
	b.WriteString("?code=")
	b.WriteString(url.QueryEscape(code))
	b.WriteString("&user=")
	b.WriteString(url.QueryEscape(userID))
	if state != "" {
		b.WriteString("&state=")
		b.WriteString(url.QueryEscape(state))
	}
	return b.String()
}

// tokenResponse es el cuerpo de éxito del endpoint de token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleToken canjea un authorization code o un refresh token. El error hacia
// el client lleva siempre la etiqueta unauthorized_client: el nombre interno
// del error del engine no se forwardea, solo su mensaje y status.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	state := params["state"]

	// credenciales por Basic auth como alternativa al body
	if id, secret, ok := r.BasicAuth(); ok {
		if _, present := params["client_id"]; !present {
			params["client_id"] = id
		}
		if _, present := params["client_secret"]; !present {
			params["client_secret"] = secret
		}
	}

	schema := validation.AccessTokenPost()
	if _, isRefresh := params["refresh_token"]; isRefresh {
		schema = validation.RefreshTokenPost()
	}
	if !validation.Validate(params, schema, s.opts.Debug) {
		s.respondError(w, httpx.ErrorOptions{
			Error:       engine.ErrNameInvalidRequest,
			Description: "one or more request parameters are invalid",
			Status:      http.StatusBadRequest,
			State:       state,
		})
		return
	}

	token, err := s.engine.Token(r.Context(), engine.TokenRequest{
		GrantType:    params["grant_type"],
		Code:         params["code"],
		RedirectURI:  params["redirect_uri"],
		ClientID:     params["client_id"],
		ClientSecret: params["client_secret"],
		RefreshToken: params["refresh_token"],
	})
	if err != nil {
		engErr, _ := engine.AsError(err)
		s.respondError(w, httpx.ErrorOptions{
			Error:         engine.ErrNameUnauthorizedClient,
			Description:   engErr.Description,
			Status:        engErr.Status,
			State:         state,
			OriginalError: err,
		})
		return
	}

	metrics.TokensIssuedTotal.WithLabelValues(params["grant_type"]).Inc()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	resp := tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(token.AccessTokenExpiresAt).Round(time.Second) / time.Second),
		RefreshToken: token.RefreshToken,
	}
	// atributos extendidos: los campos del token persistido más allá del
	// contrato básico solo se exponen si el deploy lo habilitó
	if s.engine.Options().AllowExtendedTokenAttributes {
		resp.Scope = token.Scope
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleFallback responde las rutas no matcheadas.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("unmatched route", logger.Method(r.Method), logger.Path(r.URL.Path))
	s.respondError(w, httpx.ErrorOptions{
		Error:       "route not found",
		Description: r.URL.Path,
		Status:      http.StatusNotFound,
	})
}
