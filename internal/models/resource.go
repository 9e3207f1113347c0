package models

// Resource is a protected API. It owns a set of scopes and authenticates
// against the introspection endpoint with its own secrets.
type Resource struct {
	Name    string   `json:"name"`
	Secrets [][]byte `json:"-"`
	Enabled bool     `json:"enabled"`
	Scopes  []string `json:"scopes"`
}

// GetID returns the resource name
func (r *Resource) GetID() string {
	return r.Name
}

// GetHashedSecrets returns the resource's bcrypt hashed secrets
func (r *Resource) GetHashedSecrets() [][]byte {
	return r.Secrets
}

// IsEnabled reports whether the resource may authenticate
func (r *Resource) IsEnabled() bool {
	return r.Enabled
}

// Principal is anything that authenticates with an id and a shared secret
type Principal interface {
	GetID() string
	GetHashedSecrets() [][]byte
	IsEnabled() bool
}
