package middleware

import (
	"context"
	"net/http"
	"strings"
)

type localeCtxKey int

const localeKey localeCtxKey = 3

// LocaleMiddleware resolves the response locale from Accept-Language.
// Korean is the default; only "en" is recognized as an alternative.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := "ko"
		for _, part := range strings.Split(r.Header.Get("Accept-Language"), ",") {
			tag := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
			if tag == "en" || strings.HasPrefix(tag, "en-") {
				locale = "en"
				break
			}
			if tag == "ko" || strings.HasPrefix(tag, "ko-") {
				break
			}
		}
		ctx := context.WithValue(r.Context(), localeKey, locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LocaleFromContext returns the resolved locale, defaulting to Korean.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey).(string); ok && v != "" {
		return v
	}
	return "ko"
}
