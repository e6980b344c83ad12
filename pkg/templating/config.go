package templating

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// IncludesDir is the directory holding layouts and partials. Every file in it
	// whose extension is listed in Extensions is parsed as a named template.
	IncludesDir string `json:"-" toml:"-"`

	// Extensions lists the file extensions (with leading dot) treated as templates.
	Extensions []string `json:"extensions" toml:"extensions"`

	// MaxLayoutDepth bounds how many layouts a page may be wrapped in. It also
	// stops layout cycles.
	MaxLayoutDepth int `json:"max_layout_depth" toml:"max_layout_depth"`

	// DateLocation is the IANA zone used by the date filter's default rendering.
	// The ISO and long-form tokens always use UTC.
	DateLocation string `json:"date_location" toml:"date_location"`
}

// DefaultConfig returns a TemplateConfig with default values.
// IncludesDir is empty and has to be set by the caller.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		Extensions:     []string{".html"},
		MaxLayoutDepth: 10,
		DateLocation:   "UTC",
	}
}
