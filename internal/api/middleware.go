package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/jsonapi"
	"go.uber.org/zap"
)

func (s *ChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error("panic", zap.Error(panicError), zap.String("path", r.URL.Path))
				w.Header().Set("Connection", "close")
				s.writeError(w, NewInternalServerError(panicError))
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// negotiate rejects requests whose Content-Type or Accept header does not
// name the JSON:API media type. Content-Type is checked first.
func (s *ChatApp) negotiate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if !isMediaType(contentType) {
			s.writeError(w, NewUnsupportedContentTypeError(headerValue(contentType)))
			return
		}

		accept := r.Header.Get("Accept")
		if !accepts(accept) {
			s.writeError(w, NewUnsupportedAcceptError(headerValue(accept)))
			return
		}

		next(w, r)
	}
}

func (s *ChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeError(w, NewUnauthorizedError(detailNoToken))
			return
		}

		userId, err := s.tokens.ResolveToken(token)
		if err != nil {
			s.log.Debug("failed to resolve token", zap.Error(err))
			s.writeError(w, NewUnauthorizedError(detailInvalidToken))
			return
		}

		user, err := s.db.GetUserById(userId)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				s.writeError(w, NewUnauthorizedError(detailInvalidToken))
			} else {
				s.writeError(w, NewInternalServerError(err))
			}
			return
		}

		ctx := WithUserId(r.Context(), user.Id)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// isMediaType reports whether a Content-Type header names the JSON:API
// media type. Parameters such as charset are ignored.
func isMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == jsonapi.MediaType
}

// accepts reports whether an Accept header allows the JSON:API media type.
// A missing header accepts anything. Ranges with q=0 are refused.
func accepts(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}

	for _, part := range strings.Split(accept, ",") {
		mediaRange, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok && isZeroQuality(q) {
			continue
		}

		switch mediaRange {
		case "*/*", "application/*", jsonapi.MediaType:
			return true
		}
	}

	return false
}

func isZeroQuality(q string) bool {
	q = strings.TrimRight(strings.TrimSpace(q), "0")
	return q == "0." || q == "0" || q == ""
}

// headerValue renders a header the way it appears in error details.
func headerValue(v string) string {
	if v == "" {
		return "undefined"
	}
	return v
}
