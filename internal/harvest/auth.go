package harvest

// AuthConfig is a tagged variant over the credential schemes a source may
// require. Each variant carries only the fields its scheme needs; resolution
// into a transport-ready header value happens once per harvest in the API
// engine. A nil AuthConfig means the source is unauthenticated.
type AuthConfig interface {
	authKind() string
}

// BearerAuth sends a pre-issued token as "Bearer <token>".
type BearerAuth struct {
	Token string
}

// BasicAuth sends a username/password pair base64-encoded.
type BasicAuth struct {
	Username string
	Password string
}

// APIKeyAuth sends an opaque key, either in a named header or as-is in the
// Authorization header when HeaderName is empty.
type APIKeyAuth struct {
	Key        string
	HeaderName string
}

// OAuth2Auth performs a client_credentials token exchange against TokenURL
// before the first page fetch. Exchange failure is an authentication error,
// never a silent downgrade to unauthenticated.
type OAuth2Auth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

func (BearerAuth) authKind() string { return "bearer" }
func (BasicAuth) authKind() string  { return "basic" }
func (APIKeyAuth) authKind() string { return "apikey" }
func (OAuth2Auth) authKind() string { return "oauth2" }
