package api

import (
	"net/http"

	"github.com/rs/cors"
)

type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
}

func CORSMiddleware(opts CORSOptions) func(http.Handler) http.Handler {
	allowedMethods := opts.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := opts.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{"Content-Type", "Authorization"}
	}
	maxAge := opts.MaxAgeSeconds
	if maxAge <= 0 {
		maxAge = 600
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
	return c.Handler
}
