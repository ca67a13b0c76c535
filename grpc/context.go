// Package grpc authenticates outgoing gRPC calls with a session's access
// token and applies the session's unauthenticated-response policy to them.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <access token>" on outgoing calls
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyErrorCode is the trailer the server puts the auth error code in
	DefaultMetadataKeyErrorCode = "x-auth-error-code"
)

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization is the outgoing metadata key for the bearer token.
	// Defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyErrorCode is the trailer key holding codes such as
	// AUTH_TOKEN_EXPIRED on Unauthenticated errors. Defaults to "x-auth-error-code".
	MetadataKeyErrorCode string

	// PublicMethods is a set of method names that are sent without recovery
	// or activity tracking (login, refresh and the like).
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyErrorCode:     DefaultMetadataKeyErrorCode,
		PublicMethods:            make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *Config {
	config := DefaultConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyErrorCode == "" {
		c.MetadataKeyErrorCode = DefaultMetadataKeyErrorCode
	}
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// BearerToOutgoingContext sets the authorization metadata of ctx to token,
// replacing any value already present.
func BearerToOutgoingContext(ctx context.Context, token string) context.Context {
	return BearerToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// BearerToOutgoingContextWithKey is BearerToOutgoingContext with a custom key.
func BearerToOutgoingContextWithKey(ctx context.Context, token, key string) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Set(key, "Bearer "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

// BearerFromIncomingContext returns the bearer token a server received, or "".
func BearerFromIncomingContext(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	token, found := strings.CutPrefix(values[0], "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// ErrorCodeFromTrailer reads the auth error code out of a call's trailer.
func ErrorCodeFromTrailer(trailer metadata.MD, key string) string {
	if values := trailer.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
