package pipeline

import "time"

// Config parameterizes the storage endpoints and record layout of the pipeline
type Config struct {
	// SourceContainer is used when a trigger does not name a container
	SourceContainer string

	// DestinationContainer receives the uploaded media assets
	// Required.
	DestinationContainer string

	// TableName is the catalog table
	// Required.
	TableName string

	// IdentifierField is the primary key field of a catalog record
	// Optional. Defaults to "Movie_ID"
	IdentifierField string

	// ImageField and VideoField hold the asset reference lists
	// Optional. Default to "Image_url" and "Video_url"
	ImageField string
	VideoField string

	// ThumbnailField holds thumbnail references when Thumbnails is set
	// Optional. Defaults to "Thumbnail_url"
	ThumbnailField string

	// ScriptSymbol is the top-level binding read from the metadata script
	// Optional. Defaults to "testArray"
	ScriptSymbol string

	// EvalTimeout bounds metadata script evaluation
	// Optional. Defaults to 5s
	EvalTimeout time.Duration

	// EvalMemoryLimit bounds heap growth during metadata evaluation, in bytes
	// Optional. Defaults to 256 MiB
	EvalMemoryLimit uint64

	// Thumbnails enables poster thumbnail generation for image assets
	Thumbnails bool
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.IdentifierField == "" {
		c.IdentifierField = "Movie_ID"
	}
	if c.ImageField == "" {
		c.ImageField = "Image_url"
	}
	if c.VideoField == "" {
		c.VideoField = "Video_url"
	}
	if c.ThumbnailField == "" {
		c.ThumbnailField = "Thumbnail_url"
	}
	if c.ScriptSymbol == "" {
		c.ScriptSymbol = "testArray"
	}
	if c.EvalTimeout == 0 {
		c.EvalTimeout = 5 * time.Second
	}
	if c.EvalMemoryLimit == 0 {
		c.EvalMemoryLimit = 256 << 20
	}
}
