package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Validate checks enumerations and bounds, and parses Functions.
// Secrets are not required here: a missing secret surfaces as a
// configuration error on the request that needs it.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q (got %q)", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	for _, cidr := range c.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			return fmt.Errorf("server.trusted_proxies: %w", err)
		}
	}

	switch c.Storage.Driver {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("storage.driver must be %q or %q (got %q)", StorageLocal, StorageS3, c.Storage.Driver)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes must be > 0 (got %d)", c.Storage.MaxUploadBytes)
	}

	switch c.Security.AuthScheme {
	case AuthSchemeSecret, AuthSchemeSignature:
	default:
		return fmt.Errorf("security.auth_scheme must be %q or %q (got %q)",
			AuthSchemeSecret, AuthSchemeSignature, c.Security.AuthScheme)
	}
	switch c.Security.RateLimitStore {
	case RateStoreMemory, RateStoreTTL:
	default:
		return fmt.Errorf("security.rate_limit_store must be %q or %q (got %q)",
			RateStoreMemory, RateStoreTTL, c.Security.RateLimitStore)
	}
	if c.Security.PublicMax <= 0 || c.Security.ProtectedMax <= 0 {
		return fmt.Errorf("security rate limits must be > 0")
	}
	if c.Security.PublicWindow <= 0 || c.Security.ProtectedWindow <= 0 || c.Security.SignatureWindow <= 0 {
		return fmt.Errorf("security windows must be > 0")
	}

	if c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("cors.allowed_origins cannot contain \"*\" while cors.allow_credentials is set")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be > 0 (got %s)", c.Auth.SessionTTL)
	}

	functions, err := ParseFunctions(c.Functions)
	if err != nil {
		return fmt.Errorf("functions: %w", err)
	}
	c.functions = functions

	return nil
}

// ParseFunctions parses "name=kind:collection" entries. The collection
// defaults to "main" when omitted.
func ParseFunctions(raw string) ([]Function, error) {
	var out []Function
	seen := make(map[string]struct{})

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, rest, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q: want name=kind[:collection]", part)
		}
		kind, collection, _ := strings.Cut(rest, ":")

		fn := Function{
			Name:       strings.Trim(strings.TrimSpace(name), "/"),
			Kind:       strings.TrimSpace(kind),
			Collection: strings.TrimSpace(collection),
		}
		if fn.Collection == "" {
			fn.Collection = "main"
		}
		if fn.Name == "" || strings.Contains(fn.Name, "/") {
			return nil, fmt.Errorf("invalid function name in %q", part)
		}
		if fn.Kind != KindProjects && fn.Kind != KindServices {
			return nil, fmt.Errorf("function %s: kind must be %q or %q", fn.Name, KindProjects, KindServices)
		}
		if _, dup := seen[fn.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q", fn.Name)
		}
		seen[fn.Name] = struct{}{}

		out = append(out, fn)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("at least one function is required")
	}
	return out, nil
}
