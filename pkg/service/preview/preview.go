// Package preview turns a single component source file into a standalone
// HTML document that mounts the component in a browser.
package preview

import (
	"bytes"
	_ "embed"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
)

// DefaultEntry is mounted when the source has no default export
const DefaultEntry = "App"

// StylesheetName is the companion stylesheet of a previewed component
const StylesheetName = "styles.css"

// anonymousEntry names an anonymous default export
const anonymousEntry = "PreviewEntry"

//go:embed template/document.html
var documentTemplate string

var tmpl = template.Must(template.New("document").Parse(documentTemplate))

var (
	importRe = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:([^'";]*?)\s+from\s+)?['"]([^'"]+)['"][ \t]*;?[ \t]*$\n?`)

	exportListRe        = regexp.MustCompile(`(?m)^[ \t]*export\s*\{[^}]*\}(?:\s*from\s*['"][^'"]+['"])?[ \t]*;?[ \t]*$\n?`)
	exportDefaultDeclRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+(async\s+function|function|class)\b\s*(\*?)\s*([A-Za-z_$][\w$]*)?`)
	exportDefaultNameRe = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+([A-Za-z_$][\w$]*)[ \t]*;?[ \t]*$\n?`)
	exportDefaultExprRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	exportNamedRe       = regexp.MustCompile(`(?m)^([ \t]*)export\s+(async\s+function|const|let|var|function|class)\b`)

	identRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// runtime stand-ins for the modules a generated component is expected to use
var reactNames = map[string]bool{
	"useState": true, "useEffect": true, "useRef": true, "useMemo": true,
	"useCallback": true, "useReducer": true, "useContext": true, "useLayoutEffect": true,
	"useId": true, "createContext": true, "Fragment": true, "forwardRef": true, "memo": true,
}

const standIns = `const { useState, useEffect, useRef, useMemo, useCallback, useReducer, useContext, useLayoutEffect, useId, createContext, Fragment, forwardRef, memo } = React;
const __icon = (name) => (props) => React.createElement("span", Object.assign({ "data-icon": name, style: { display: "inline-block", width: (props && props.size) || 24, height: (props && props.size) || 24 } }, props && props.className ? { className: props.className } : {}));
const __motion = new Proxy({}, { get: (_, tag) => React.forwardRef((props, ref) => { const { initial, animate, exit, transition, whileHover, whileTap, whileInView, variants, layout, ...rest } = props; return React.createElement(tag, Object.assign({ ref }, rest)); }) });
const __passthrough = (props) => React.createElement(React.Fragment, null, props.children);
`

// Document is the rendered preview
type Document struct {
	HTML string
	// Entry is the name of the mounted component
	Entry string
}

type input struct {
	Title   string
	CSS     string
	Prelude string
	Source  string
	Entry   string
}

// Render builds the preview document of source with the optional companion
// stylesheet css.
func Render(title, source, css string) (*Document, error) {
	if strings.TrimSpace(source) == "" {
		return nil, goerr.New("source is empty", goerr.T(errs.TagValidation))
	}

	body, imports := stripImports(source)
	body, entry := stripExports(body)
	if entry == "" {
		entry = DefaultEntry
	}

	in := input{
		Title:   escapeText(title),
		CSS:     escapeEnd(css, "</style"),
		Prelude: escapeEnd(standIns+bindings(imports), "</script"),
		Source:  escapeEnd(body, "</script"),
		Entry:   entry,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return nil, goerr.Wrap(err, "failed to render preview document")
	}

	return &Document{HTML: buf.String(), Entry: entry}, nil
}

// importSpec is one name bound by an import declaration
type importSpec struct {
	module string
	// imported is the exported name; "default" and "*" for default and namespace imports
	imported string
	local    string
}

func stripImports(source string) (string, []importSpec) {
	var specs []importSpec
	for _, m := range importRe.FindAllStringSubmatch(source, -1) {
		specs = append(specs, parseClause(m[1], m[2])...)
	}
	return importRe.ReplaceAllString(source, ""), specs
}

func parseClause(clause, module string) []importSpec {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil
	}

	var specs []importSpec
	named := ""
	if i := strings.Index(clause, "{"); i >= 0 {
		if j := strings.LastIndex(clause, "}"); j > i {
			named = clause[i+1 : j]
			clause = clause[:i] + clause[j+1:]
		}
	}

	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "*"):
			local := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(part, "*")), "as"))
			specs = append(specs, importSpec{module: module, imported: "*", local: local})
		default:
			specs = append(specs, importSpec{module: module, imported: "default", local: part})
		}
	}

	for _, part := range strings.Split(named, ",") {
		fields := strings.Fields(part)
		switch {
		case len(fields) == 1:
			specs = append(specs, importSpec{module: module, imported: fields[0], local: fields[0]})
		case len(fields) == 3 && fields[1] == "as":
			specs = append(specs, importSpec{module: module, imported: fields[0], local: fields[2]})
		}
	}

	var valid []importSpec
	for _, s := range specs {
		if identRe.MatchString(s.local) {
			valid = append(valid, s)
		}
	}
	return valid
}

// bindings declares the stand-in of every imported name. Names of unknown
// modules stay undeclared and surface as a preview error when used.
func bindings(specs []importSpec) string {
	decl := map[string]string{}
	for _, s := range specs {
		if s.local == "React" || (s.module == "react" && reactNames[s.local] && s.local == s.imported) {
			continue
		}

		switch s.module {
		case "react", "react-dom", "react-dom/client":
			if s.imported == "default" || s.imported == "*" {
				if s.module == "react" {
					decl[s.local] = "React"
				} else {
					decl[s.local] = "ReactDOM"
				}
			} else if s.module == "react" {
				decl[s.local] = "React." + s.imported
			} else {
				decl[s.local] = "ReactDOM." + s.imported
			}

		case "lucide-react":
			if s.imported == "default" || s.imported == "*" {
				decl[s.local] = "new Proxy({}, { get: (_, name) => __icon(String(name)) })"
			} else {
				decl[s.local] = `__icon("` + s.imported + `")`
			}

		case "framer-motion":
			switch s.imported {
			case "motion":
				decl[s.local] = "__motion"
			case "AnimatePresence", "LayoutGroup", "MotionConfig":
				decl[s.local] = "__passthrough"
			}
		}
	}

	names := make([]string, 0, len(decl))
	for name := range decl {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("const " + name + " = " + decl[name] + ";\n")
	}
	return b.String()
}

// stripExports removes export syntax and returns the name of the default export
func stripExports(source string) (string, string) {
	var entry string

	source = exportListRe.ReplaceAllString(source, "")

	source = exportDefaultDeclRe.ReplaceAllStringFunc(source, func(s string) string {
		m := exportDefaultDeclRe.FindStringSubmatch(s)
		name := m[4]
		if name == "" {
			name = anonymousEntry
		}
		entry = name
		return m[1] + m[2] + m[3] + " " + name
	})

	source = exportDefaultNameRe.ReplaceAllStringFunc(source, func(s string) string {
		entry = exportDefaultNameRe.FindStringSubmatch(s)[1]
		return ""
	})

	source = exportDefaultExprRe.ReplaceAllStringFunc(source, func(s string) string {
		entry = anonymousEntry
		return exportDefaultExprRe.FindStringSubmatch(s)[1] + "const " + anonymousEntry + " = "
	})

	source = exportNamedRe.ReplaceAllString(source, "$1$2")
	return source, entry
}

// escapeEnd breaks sequences that would close the enclosing element early
func escapeEnd(s, tag string) string {
	return replaceFold(s, tag, `<\`+tag[1:])
}

func replaceFold(s, old, repl string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	for {
		i := strings.Index(lower, old)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(repl)
		s, lower = s[i+len(old):], lower[i+len(old):]
	}
}

func escapeText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
