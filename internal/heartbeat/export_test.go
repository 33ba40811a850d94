package heartbeat

// WithRequestID overrides the request identifier generator.
func WithRequestID(f func() string) Options {
	return func(o *options) {
		o.requestID = f
	}
}

// NodeURL is exported for tests.
var NodeURL = nodeURL
