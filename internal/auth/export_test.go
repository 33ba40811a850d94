package auth

// WithScheme overrides the scheme of the token endpoint.
func WithScheme(scheme string) Options {
	return func(o *options) {
		o.scheme = scheme
	}
}
