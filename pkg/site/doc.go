// Package site builds a static site from a source tree: it renders every page
// through the templating engine into a permalink-style output tree and copies
// the configured passthrough files verbatim.
package site
