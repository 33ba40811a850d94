package pciref

// WithOfflinePaths overrides the system database locations tried before the bundled copy.
func WithOfflinePaths(paths ...string) Options {
	return func(o *options) {
		o.offlinePaths = paths
	}
}

// WithBundledDatabase overrides the database bundled in the binary.
func WithBundledDatabase(data []byte) Options {
	return func(o *options) {
		o.bundled = data
	}
}

// WithVramTable overrides the bundled VRAM table document.
func WithVramTable(data string) Options {
	return func(o *options) {
		o.vram = data
	}
}
