package output

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/cagmero/ARGUS/internal/types"
)

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem auto; max-width: 72rem; color: #1f2328; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #d0d7de; padding: 4px 10px; text-align: left; vertical-align: top; }
code { background: #f6f8fa; padding: 1px 4px; border-radius: 4px; }
blockquote { color: #57606a; border-left: 4px solid #d0d7de; margin: 0; padding-left: 1rem; }
summary { cursor: pointer; margin: .5rem 0; }
</style>
</head>
<body>
`

const htmlTail = "</body>\n</html>\n"

// HTMLFormatter renders the Markdown report as a standalone HTML page.
type HTMLFormatter struct{}

func (f *HTMLFormatter) Format(w io.Writer, result *types.ScanResult) error {
	var md bytes.Buffer
	if err := (&MarkdownFormatter{}).Format(&md, result); err != nil {
		return err
	}

	// Raw HTML is limited to the <details> blocks the Markdown formatter
	// emits; finding text is escaped before it reaches the document.
	conv := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	var body bytes.Buffer
	if err := conv.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}

	title := "Argus scan report"
	if result.Target != "" {
		title += ": " + result.Target
	}
	if _, err := fmt.Fprintf(w, htmlHead, html.EscapeString(title)); err != nil {
		return err
	}
	if _, err := body.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, htmlTail)
	return err
}
