package markdown

import (
	"strings"
	"testing"
)

func TestRenderProducesHTML(t *testing.T) {
	renderer := NewRenderer()

	output := renderer.Render("# Title\n\nSome **bold** text")
	if !strings.Contains(output, "<strong>bold</strong>") {
		t.Fatalf("expected bold markup, got %q", output)
	}
	if !strings.Contains(output, "<h1") {
		t.Fatalf("expected heading markup, got %q", output)
	}
}

func TestRenderStripsScripts(t *testing.T) {
	renderer := NewRenderer()

	output := renderer.Render("hello <script>alert('x')</script> world")
	if strings.Contains(output, "<script") {
		t.Fatalf("expected script to be stripped, got %q", output)
	}
	if !strings.Contains(output, "hello") {
		t.Fatalf("expected text to survive, got %q", output)
	}
}

func TestRenderLinksOpenSafely(t *testing.T) {
	renderer := NewRenderer()

	output := renderer.Render("[site](https://example.com)")
	if !strings.Contains(output, "noreferrer") {
		t.Fatalf("expected noreferrer on link, got %q", output)
	}
	if !strings.Contains(output, `target="_blank"`) {
		t.Fatalf("expected target blank on link, got %q", output)
	}
}

func TestRenderEmpty(t *testing.T) {
	if output := NewRenderer().Render(""); output != "" {
		t.Fatalf("expected empty output, got %q", output)
	}
}
