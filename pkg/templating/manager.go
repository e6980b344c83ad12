package templating

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrLayoutNotFound is returned when a page or layout names a layout that is not loaded.
	ErrLayoutNotFound = errors.New("layout not found")
	// ErrLayoutDepth is returned when a layout chain is deeper than MaxLayoutDepth,
	// which includes any chain that loops back on itself.
	ErrLayoutDepth = errors.New("layout chain too deep")
)

// PageInfo describes where a page comes from and where it is published.
type PageInfo struct {
	URL        string
	InputPath  string
	OutputPath string
	Date       time.Time
}

// Page is a single source template ready to be rendered.
// Body is the template source with the front matter already removed.
type Page struct {
	PageInfo
	Body []byte
	Data map[string]any
}

// PageData is the value templates are executed with. Content holds the
// rendered inner HTML and is only set while executing a layout.
type PageData struct {
	Page    PageInfo
	Data    map[string]any
	Content template.HTML
}

// TemplateManager is the central controller for the templating engine.
// It owns the parsed include set, the layout graph, and the function map.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger        *slog.Logger
	config        *TemplateConfig
	dates         DateFormatter
	templates     *template.Template
	layoutParents map[string]string
	layoutData    map[string]map[string]any
	funcMap       template.FuncMap
	includesDir   string
	mu            sync.RWMutex
}

// NewTemplateManager creates a TemplateManager and performs an initial Refresh
// to load every include under config.IncludesDir. A missing includes
// directory is not an error; pages simply cannot use layouts.
// Any extra function maps are merged over the built-in functions before the
// includes are parsed.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, extra ...template.FuncMap) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxLayoutDepth <= 0 {
		config.MaxLayoutDepth = DefaultConfig().MaxLayoutDepth
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultConfig().Extensions
	}

	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		includesDir: config.IncludesDir,
	}
	tm.dates = tm.makeDateFormatter()
	tm.funcMap = tm.makeFuncMap()
	for _, fm := range extra {
		for name, fn := range fm {
			tm.funcMap[name] = fn
		}
	}

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "includes_dir", tm.includesDir)
	return tm, nil
}

func (tm *TemplateManager) makeDateFormatter() DateFormatter {
	loc := time.UTC
	if tm.config.DateLocation != "" {
		l, err := time.LoadLocation(tm.config.DateLocation)
		if err != nil {
			tm.logger.Warn("Unknown date location, falling back to UTC", "location", tm.config.DateLocation, "error", err)
		} else {
			loc = l
		}
	}
	return DateFormatter{Location: loc}
}

func (tm *TemplateManager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Dates (from funcs_date.go)
		"date": tm.date,

		// Logic & Collections (from funcs_logic.go)
		"repeat":     repeat,
		"list":       list,
		"first":      first,
		"sortedKeys": sortedKeys,
		"join":       join,

		// Simple (from funcs_simple.go)
		"add":      add,
		"sub":      sub,
		"div":      div,
		"mult":     mult,
		"max":      maxInt,
		"min":      minInt,
		"mod":      mod,
		"inc":      inc,
		"dec":      dec,
		"isSet":    isSet,
		"default":  defaultValue,
		"safeHTML": safeHTML,
	}
}

// date is the "date" template function: {{ date value format }}.
func (tm *TemplateManager) date(value any, format string) string {
	return tm.dates.Format(value, format)
}

// AddFunc registers an additional template function (filter) under name,
// replacing any existing function with the same name. Includes that need the
// new function at parse time require a subsequent Refresh.
func (tm *TemplateManager) AddFunc(name string, fn any) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.funcMap[name] = fn
	if tm.templates != nil {
		tm.templates.Funcs(template.FuncMap{name: fn})
	}
}

// Refresh reloads all includes from the filesystem. Each include is named by
// its slash-separated path relative to the includes directory.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	set := template.New("").Funcs(tm.funcMap)
	parents := map[string]string{}
	layoutData := map[string]map[string]any{}

	if tm.includesDir == "" {
		tm.templates, tm.layoutParents, tm.layoutData = set, parents, layoutData
		return nil
	}

	tm.logger.Debug("Loading include files...", "dir", tm.includesDir)
	err := filepath.WalkDir(tm.includesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !tm.isTemplateFile(p) {
			return nil
		}

		rel, err := filepath.Rel(tm.includesDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		src, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read include %s: %w", name, err)
		}
		data, body, err := ParseFrontMatter(src)
		if err != nil {
			return fmt.Errorf("include %s: %w", name, err)
		}
		if _, err = set.New(name).Parse(string(body)); err != nil {
			return fmt.Errorf("failed to parse include %s: %w", name, err)
		}
		if parent, ok := data[LayoutKey].(string); ok && parent != "" {
			parents[name] = parent
		}
		layoutData[name] = data
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			tm.logger.Warn("Includes directory does not exist, no layouts available", "dir", tm.includesDir)
			set = template.New("").Funcs(tm.funcMap)
			parents = map[string]string{}
			layoutData = map[string]map[string]any{}
		} else {
			tm.logger.Error("failed to load include files", "error", err)
			return err
		}
	}

	tm.templates = set
	tm.layoutParents = parents
	tm.layoutData = layoutData
	tm.logger.Info("Loaded include files", "count", len(layoutData))
	return nil
}

func (tm *TemplateManager) isTemplateFile(p string) bool {
	return slices.Contains(tm.config.Extensions, strings.ToLower(filepath.Ext(p)))
}

// RenderPage executes a page and wraps the result in its layout chain,
// writing the final document to w. Nothing is written if any step fails.
func (tm *TemplateManager) RenderPage(w io.Writer, page *Page) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	set, err := tm.templates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone templates for %s: %w", page.InputPath, err)
	}

	data := page.Data
	if data == nil {
		data = map[string]any{}
	}

	t, err := set.New(page.InputPath).Parse(string(page.Body))
	if err != nil {
		return fmt.Errorf("failed to parse page %s: %w", page.InputPath, err)
	}

	var buf bytes.Buffer
	if err = t.Execute(&buf, PageData{Page: page.PageInfo, Data: data}); err != nil {
		return fmt.Errorf("failed to execute page %s: %w", page.InputPath, err)
	}

	layout, _ := data[LayoutKey].(string)
	for depth := 0; layout != ""; depth++ {
		if depth >= tm.config.MaxLayoutDepth {
			return fmt.Errorf("%w: %s exceeds %d layouts", ErrLayoutDepth, page.InputPath, tm.config.MaxLayoutDepth)
		}
		name, ok := tm.resolveLayout(layout)
		if !ok {
			return fmt.Errorf("%w: %q (used by %s)", ErrLayoutNotFound, layout, page.InputPath)
		}

		content := template.HTML(buf.String())
		buf.Reset()
		merged := mergeData(tm.layoutData[name], data)
		if err = set.ExecuteTemplate(&buf, name, PageData{Page: page.PageInfo, Data: merged, Content: content}); err != nil {
			return fmt.Errorf("failed to execute layout %s for %s: %w", name, page.InputPath, err)
		}
		layout = tm.layoutParents[name]
	}

	_, err = buf.WriteTo(w)
	return err
}

// resolveLayout maps a layout reference to a loaded include name. The
// reference may omit the extension.
func (tm *TemplateManager) resolveLayout(ref string) (string, bool) {
	ref = strings.TrimPrefix(path.Clean(filepath.ToSlash(ref)), "/")
	if _, ok := tm.layoutData[ref]; ok {
		return ref, true
	}
	for _, ext := range tm.config.Extensions {
		if _, ok := tm.layoutData[ref+ext]; ok {
			return ref + ext, true
		}
	}
	return "", false
}

// mergeData returns layout data overlaid with page data. Page values win.
func mergeData(layout, page map[string]any) map[string]any {
	merged := make(map[string]any, len(layout)+len(page))
	for k, v := range layout {
		merged[k] = v
	}
	for k, v := range page {
		merged[k] = v
	}
	return merged
}

// Execute renders a single include by name, writing the output to w.
func (tm *TemplateManager) Execute(w io.Writer, name string, data any) error {
	if name == "" {
		return nil
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	set, err := tm.templates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone templates: %w", err)
	}
	return set.ExecuteTemplate(w, name, data)
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTemplateNames returns the sorted names of every loaded include.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, 0, len(tm.layoutData))
	for name := range tm.layoutData {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetIncludesDir returns the includes directory that the TemplateManager uses.
func (tm *TemplateManager) GetIncludesDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.includesDir
}

// ExecuteTemplateString parses and executes a raw template string using the manager's function map.
// This is ideal for testing or previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data any) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	// Clone the unexecuted set so the string can reference any include.
	tempSet, err := tm.templates.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone templates for string execution: %w", err)
	}

	t, err := tempSet.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}

	return t.Execute(w, data)
}
