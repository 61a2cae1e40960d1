package nodefs

// Visibility is the readable/writable proxy reported for a path.
// Backends map it to object ACLs, container access or file modes.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Options collects per-write settings. Fields a backend has no place for
// are ignored by it.
type Options struct {
	ContentType  string
	Metadata     map[string]string
	Visibility   Visibility
	CacheControl string

	// Overwrite replaces an existing file. Backends that honour it fail
	// with ErrExist when it is false and the path is taken.
	Overwrite bool
}

// Option sets one field of Options.
type Option func(*Options)

// ApplyOptions returns the Options produced by opts, in order.
func ApplyOptions(opts ...Option) *Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

func WithContentType(contentType string) Option {
	return func(o *Options) { o.ContentType = contentType }
}

// WithMetadata attaches user metadata; object stores persist it as object
// metadata, the local driver drops it.
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) { o.Metadata = metadata }
}

func WithVisibility(visibility Visibility) Option {
	return func(o *Options) { o.Visibility = visibility }
}

func WithCacheControl(cacheControl string) Option {
	return func(o *Options) { o.CacheControl = cacheControl }
}

func WithOverwrite(overwrite bool) Option {
	return func(o *Options) { o.Overwrite = overwrite }
}
