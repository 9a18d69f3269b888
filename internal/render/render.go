package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rytsh/mugo/fstore"
	_ "github.com/rytsh/mugo/fstore/registry"
	"github.com/rytsh/mugo/render"
	"github.com/rytsh/mugo/templatex"
)

var ExecuteWithData = render.ExecuteWithData

// ExecuteWithFuncs renders a Go template with the standard mugo function map
// plus additional custom functions. Use this to inject per-execution
// functions that need access to runtime state.
func ExecuteWithFuncs(content string, data any, extraFuncs map[string]any) ([]byte, error) {
	tpl := templatex.New(
		templatex.WithAddFuncMapWithOpts(func(o templatex.Option) map[string]any {
			return fstore.FuncMap(
				fstore.WithLog(slog.Default()),
				fstore.WithTrust(true),
				fstore.WithExecuteTemplate(o.T),
			)
		}),
		templatex.WithAddFuncMap(extraFuncs),
	)

	var buf bytes.Buffer
	if err := tpl.Execute(
		templatex.WithIO(&buf),
		templatex.WithContent(content),
		templatex.WithData(data),
	); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Strict renders a prompt template against the input mapping with strict
// undefined-variable semantics: any reference that resolves to nothing
// fails instead of silently producing an empty slot. The rendered text is
// dedented and trimmed.
func Strict(content string, data any) (string, error) {
	if content == "" {
		return "", fmt.Errorf("prompt template not provided")
	}

	out, err := ExecuteWithData(content, data)
	if err != nil {
		return "", err
	}

	text := string(out)

	// text/template renders unresolvable references as "<no value>" rather
	// than failing; treat any occurrence as an undefined variable.
	if strings.Contains(text, "<no value>") {
		return "", fmt.Errorf("undefined variable in template %q", firstLine(content))
	}

	return strings.TrimSpace(Dedent(text)), nil
}

// Dedent removes the common leading whitespace shared by all non-empty
// lines, so indented multi-line prompt literals render flush left.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")

	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}

	if margin <= 0 {
		return text
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = line[margin:]
	}

	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + "…"
	}

	return s
}
