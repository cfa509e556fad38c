package ticketing

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrCredentialNotFound is returned when a credential reference cannot be resolved
var ErrCredentialNotFound = errors.New("ticketing: credential reference not found")

// Credentials authenticate requests to a platform instance. Basic auth is used
// when Username is set, a bearer token otherwise.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// IsBasic reports whether basic authentication is configured
func (c Credentials) IsBasic() bool {
	return c.Username != ""
}

// CredentialResolver turns a connection's credential reference into secrets.
// Connections only ever store the reference.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (Credentials, error)
}

// EnvCredentialPrefix prefixes the environment variables read by EnvCredentialResolver
const EnvCredentialPrefix = "ITSM_CRED_"

// EnvCredentialResolver reads credentials from ITSM_CRED_<REF>. The value is
// either "user:password" for basic auth or "token:<token>" for bearer auth.
type EnvCredentialResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvCredentialResolver creates a resolver over the process environment
func NewEnvCredentialResolver() *EnvCredentialResolver {
	return &EnvCredentialResolver{lookup: os.LookupEnv}
}

// Resolve looks the reference up in the environment
func (r *EnvCredentialResolver) Resolve(_ context.Context, ref string) (Credentials, error) {
	value, ok := r.lookup(EnvVarName(ref))
	if !ok || strings.TrimSpace(value) == "" {
		return Credentials{}, ErrCredentialNotFound
	}
	return ParseCredentials(value)
}

// EnvVarName returns the environment variable holding a reference:
// "snow-prod" -> "ITSM_CRED_SNOW_PROD"
func EnvVarName(ref string) string {
	var b strings.Builder
	b.WriteString(EnvCredentialPrefix)
	for _, r := range strings.ToUpper(strings.TrimSpace(ref)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ParseCredentials parses the textual credential form
func ParseCredentials(value string) (Credentials, error) {
	value = strings.TrimSpace(value)
	if token, ok := strings.CutPrefix(value, "token:"); ok {
		if token == "" {
			return Credentials{}, ErrCredentialNotFound
		}
		return Credentials{Token: token}, nil
	}
	user, pass, ok := strings.Cut(value, ":")
	if !ok || user == "" {
		return Credentials{}, ErrCredentialNotFound
	}
	return Credentials{Username: user, Password: pass}, nil
}

// StaticCredentialResolver serves credentials from a fixed map
type StaticCredentialResolver map[string]Credentials

// Resolve returns the credentials stored under ref
func (s StaticCredentialResolver) Resolve(_ context.Context, ref string) (Credentials, error) {
	c, ok := s[ref]
	if !ok {
		return Credentials{}, ErrCredentialNotFound
	}
	return c, nil
}
