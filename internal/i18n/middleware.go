package i18n

import "net/http"

// Middleware injects a localizer into every request context. A lang query
// parameter wins over the Accept-Language header; lang is the fallback.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			langs := []string{}
			if q := r.URL.Query().Get("lang"); q != "" {
				langs = append(langs, q)
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				langs = append(langs, al)
			}
			langs = append(langs, lang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
