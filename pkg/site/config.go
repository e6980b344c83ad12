package site

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/templating"
)

// Dirs names the three directories a build works with. Includes is relative
// to Input.
type Dirs struct {
	Input    string `json:"input" toml:"input" validate:"required"`
	Output   string `json:"output" toml:"output" validate:"required,nefield=Input"`
	Includes string `json:"includes" toml:"includes" validate:"required"`
}

// Config is the complete description of a site build.
type Config struct {
	Dir Dirs `json:"dir" toml:"dir"`

	// PassthroughCopy lists glob patterns, relative to the working directory,
	// of files and directories copied to the output tree without processing.
	PassthroughCopy []string `json:"passthrough_copy" toml:"passthrough_copy" validate:"dive,required"`

	// Concurrency bounds how many pages are rendered and files copied at once.
	Concurrency int `json:"concurrency" toml:"concurrency" validate:"min=1,max=256"`

	// ManifestPath is the SQLite database used to skip unchanged passthrough
	// files. An empty path disables incremental copying.
	ManifestPath string `json:"manifest_path" toml:"manifest_path"`

	Templates *templating.TemplateConfig `json:"template_config" toml:"template_config" validate:"required"`
}

// DefaultConfig returns the site configuration: sources in src, output in
// _site, layouts in src/_includes, and the stylesheet, top-level PNGs,
// images and admin directories copied verbatim.
func DefaultConfig() *Config {
	return &Config{
		Dir: Dirs{
			Input:    "src",
			Output:   "_site",
			Includes: "_includes",
		},
		PassthroughCopy: []string{
			"src/styles.css",
			"src/*.png",
			"src/images",
			"src/admin",
		},
		Concurrency:  4,
		ManifestPath: ".cache/site.db",
		Templates:    templating.DefaultConfig(),
	}
}

// Validate checks the configuration for missing or conflicting values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid site config: %w", err)
	}
	if filepath.Clean(c.Dir.Input) == filepath.Clean(c.Dir.Output) {
		return fmt.Errorf("invalid site config: output dir %q must differ from input dir", c.Dir.Output)
	}
	for _, ext := range c.Templates.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("invalid site config: template extension %q must start with a dot", ext)
		}
	}
	return nil
}

// IncludesPath returns the includes directory joined onto the input directory.
func (c *Config) IncludesPath() string {
	return filepath.Join(c.Dir.Input, c.Dir.Includes)
}
