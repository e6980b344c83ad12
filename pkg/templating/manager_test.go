package templating

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeFile is a test helper that creates parent directories as needed.
func writeFile(tb testing.TB, path, content string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		tb.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
}

// setupTestManager creates a TemplateManager for a single test's scope with a
// small layout chain and a partial in its includes directory.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()

	includesDir := filepath.Join(tb.TempDir(), "_includes")
	writeFile(tb, filepath.Join(includesDir, "base.html"),
		`<html><title>{{ .Data.title }}</title><body>{{ .Content }}</body></html>`)
	writeFile(tb, filepath.Join(includesDir, "layouts", "post.html"),
		"---\nlayout: base.html\nauthor: Staff\n---\n<article>{{ .Content }}<footer>{{ .Data.author }}</footer></article>")
	writeFile(tb, filepath.Join(includesDir, "partials", "nav.html"),
		`<nav>{{ .Page.URL }}</nav>`)
	writeFile(tb, filepath.Join(includesDir, "notes.txt"), `ignored`)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := DefaultConfig()
	config.IncludesDir = includesDir
	tm, err := NewTemplateManager(logger, config)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)
	names := tm.GetTemplateNames()
	want := []string{"base.html", "layouts/post.html", "partials/nav.html"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected includes %v, got %v", want, names)
	}
	if tm.layoutParents["layouts/post.html"] != "base.html" {
		t.Errorf("post layout should chain to base.html, got %q", tm.layoutParents["layouts/post.html"])
	}
}

func TestNewTemplateManager_MissingIncludes(t *testing.T) {
	config := DefaultConfig()
	config.IncludesDir = filepath.Join(t.TempDir(), "does-not-exist")
	tm, err := NewTemplateManager(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
	if err != nil {
		t.Fatalf("missing includes dir should not be an error: %v", err)
	}
	if len(tm.GetTemplateNames()) != 0 {
		t.Errorf("expected no includes, got %v", tm.GetTemplateNames())
	}
}

func TestNewTemplateManager_BadInclude(t *testing.T) {
	includesDir := t.TempDir()
	writeFile(t, filepath.Join(includesDir, "broken.html"), `{{ if }}`)
	config := DefaultConfig()
	config.IncludesDir = includesDir
	if _, err := NewTemplateManager(slog.New(slog.NewTextHandler(io.Discard, nil)), config); err == nil {
		t.Fatal("expected a parse error for a broken include")
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	initialCount := len(tm.GetTemplateNames())

	writeFile(t, filepath.Join(tm.GetIncludesDir(), "footer.html"), `<footer></footer>`)
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if got := len(tm.GetTemplateNames()); got != initialCount+1 {
		t.Errorf("expected %d includes after refresh, got %d", initialCount+1, got)
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t)
	var buf bytes.Buffer
	err := tm.Execute(&buf, "partials/nav.html", PageData{Page: PageInfo{URL: "/about/"}})
	if err != nil {
		t.Fatalf("Execute failed for valid include: %v", err)
	}
	if buf.String() != "<nav>/about/</nav>" {
		t.Errorf("unexpected output %q", buf.String())
	}

	err = tm.Execute(&buf, "nonexistent.html", nil)
	if err == nil {
		t.Fatal("expected an error for non-existent include, but got nil")
	}
	expectedErrString := `html/template: "nonexistent.html" is undefined`
	if !strings.Contains(err.Error(), expectedErrString) {
		t.Errorf("error message mismatch: got '%v', expected to contain '%s'", err, expectedErrString)
	}
}

func TestManager_RenderPage(t *testing.T) {
	tm := setupTestManager(t)
	date := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	t.Run("NoLayout", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{URL: "/", InputPath: "src/index.html", Date: date},
			Body:     []byte(`<p>{{ date .Page.Date "%B %d, %Y" }}</p>`),
		}
		var buf bytes.Buffer
		if err := tm.RenderPage(&buf, page); err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		if buf.String() != "<p>March 05, 2024</p>" {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("LayoutChain", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{URL: "/hello/", InputPath: "src/hello.html", Date: date},
			Body:     []byte(`<p>{{ date .Data.published "%Y-%m-%d" }}</p>{{ template "partials/nav.html" . }}`),
			Data:     map[string]any{"layout": "layouts/post", "title": "Hello", "published": "2024-12-31"},
		}
		var buf bytes.Buffer
		if err := tm.RenderPage(&buf, page); err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		want := `<html><title>Hello</title><body><article><p>2024-12-31</p><nav>/hello/</nav><footer>Staff</footer></article></body></html>`
		if buf.String() != want {
			t.Errorf("layout chain mismatch:\n got %q\nwant %q", buf.String(), want)
		}
	})

	t.Run("PageDataOverridesLayoutData", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{InputPath: "src/guest.html"},
			Body:     []byte(`x`),
			Data:     map[string]any{"layout": "layouts/post.html", "title": "Guest", "author": "Visitor"},
		}
		var buf bytes.Buffer
		if err := tm.RenderPage(&buf, page); err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		if !strings.Contains(buf.String(), "<footer>Visitor</footer>") {
			t.Errorf("page data should win over layout data, got %q", buf.String())
		}
	})

	t.Run("EscapesData", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{InputPath: "src/escape.html"},
			Body:     []byte(`<p>{{ .Data.title }}</p>`),
			Data:     map[string]any{"title": "<script>"},
		}
		var buf bytes.Buffer
		if err := tm.RenderPage(&buf, page); err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		if strings.Contains(buf.String(), "<script>") {
			t.Errorf("page data should be escaped, got %q", buf.String())
		}
	})

	t.Run("MissingLayout", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{InputPath: "src/lost.html"},
			Body:     []byte(`x`),
			Data:     map[string]any{"layout": "nope.html"},
		}
		var buf bytes.Buffer
		err := tm.RenderPage(&buf, page)
		if !errors.Is(err, ErrLayoutNotFound) {
			t.Fatalf("expected ErrLayoutNotFound, got %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("nothing should be written on failure, got %q", buf.String())
		}
	})

	t.Run("InvalidDateDoesNotFail", func(t *testing.T) {
		page := &Page{
			PageInfo: PageInfo{InputPath: "src/bad-date.html"},
			Body:     []byte(`{{ date .Data.date "%Y-%m-%d" }}`),
			Data:     map[string]any{"date": "soon"},
		}
		var buf bytes.Buffer
		if err := tm.RenderPage(&buf, page); err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		if buf.String() != InvalidDate {
			t.Errorf("expected %q, got %q", InvalidDate, buf.String())
		}
	})
}

func TestManager_LayoutCycle(t *testing.T) {
	includesDir := t.TempDir()
	writeFile(t, filepath.Join(includesDir, "a.html"), "---\nlayout: b.html\n---\nA{{ .Content }}")
	writeFile(t, filepath.Join(includesDir, "b.html"), "---\nlayout: a.html\n---\nB{{ .Content }}")
	config := DefaultConfig()
	config.IncludesDir = includesDir
	tm, err := NewTemplateManager(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
	if err != nil {
		t.Fatalf("NewTemplateManager failed: %v", err)
	}

	page := &Page{PageInfo: PageInfo{InputPath: "src/loop.html"}, Body: []byte("x"), Data: map[string]any{"layout": "a"}}
	if err = tm.RenderPage(io.Discard, page); !errors.Is(err, ErrLayoutDepth) {
		t.Fatalf("expected ErrLayoutDepth, got %v", err)
	}
}

func TestManager_AddFunc(t *testing.T) {
	tm := setupTestManager(t)
	tm.AddFunc("shout", strings.ToUpper)

	var buf bytes.Buffer
	if err := tm.ExecuteTemplateString(&buf, `{{ shout "hi" }}`, nil); err != nil {
		t.Fatalf("ExecuteTemplateString failed: %v", err)
	}
	if buf.String() != "HI" {
		t.Errorf("expected 'HI', got %q", buf.String())
	}
}

func TestManager_DateLocation(t *testing.T) {
	config := DefaultConfig()
	config.DateLocation = "Not/AZone"
	tm, err := NewTemplateManager(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
	if err != nil {
		t.Fatalf("NewTemplateManager failed: %v", err)
	}
	if tm.dates.Location != time.UTC {
		t.Errorf("unknown location should fall back to UTC, got %v", tm.dates.Location)
	}
}

// BenchmarkRenderPage measures a page wrapped in a two-level layout chain.
func BenchmarkRenderPage(b *testing.B) {
	tm := setupTestManager(b)
	page := &Page{
		PageInfo: PageInfo{URL: "/bench/", InputPath: "src/bench.html"},
		Body:     []byte(`{{ range repeat 20 }}<p>{{ date "2024-03-05" "%B %d, %Y" }}</p>{{ end }}`),
		Data:     map[string]any{"layout": "layouts/post.html", "title": "Bench"},
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.RenderPage(io.Discard, page)
	}
}
