package oauth

// Declaration describes a provider's password-grant token endpoint.
type Declaration struct {
	Provider string
	TokenURL string
	ClientID string
	Scope    string
}
