package template

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeVariable
	nodeUnescaped
	nodeSection
	nodeInverted
)

type mustacheToken struct {
	kind         nodeKind
	name         string
	text         string
	sectionClose bool
}

type mustacheNode struct {
	kind     nodeKind
	name     string
	text     string
	children []mustacheNode
}

func formatMustache(template string, vars map[string]any) (string, error) {
	tokens, err := tokenizeMustache(template)
	if err != nil {
		return "", &ValidationError{Cause: err}
	}

	placeholders := requiredRoots(tokens)
	missing := missingVariables(placeholders, vars)
	if len(missing) > 0 {
		provided := make([]string, 0, len(vars))
		for k := range vars {
			provided = append(provided, k)
		}
		sort.Strings(provided)
		sorted := append([]string(nil), placeholders...)
		sort.Strings(sorted)
		return "", &ValidationError{Missing: missing, Placeholders: sorted, Provided: provided}
	}

	tree, err := buildMustacheTree(tokens)
	if err != nil {
		return "", &ValidationError{Cause: err}
	}

	var sb strings.Builder
	renderMustacheNodes(tree, []any{vars}, &sb)
	return sb.String(), nil
}

// ExtractVariables returns the root placeholder names referenced by value,
// unescaped, section-open and inverted-section tags, in first-seen order.
// Dotted paths reduce to their root key (user.name -> user).
func ExtractVariables(template string) ([]string, error) {
	tokens, err := tokenizeMustache(template)
	if err != nil {
		return nil, &ValidationError{Cause: err}
	}
	return collectRoots(tokens), nil
}

func collectRoots(tokens []mustacheToken) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, t := range tokens {
		if t.kind == nodeText || t.sectionClose || t.name == "." {
			continue
		}
		root := rootOf(t.name)
		if root != "" && !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots
}

// requiredRoots collects the root names that must be present in vars:
// only tags outside any section, since a section pushes its items as the
// lookup context and names inside it may resolve there.
func requiredRoots(tokens []mustacheToken) []string {
	seen := make(map[string]bool)
	var roots []string
	depth := 0
	for _, t := range tokens {
		if t.sectionClose {
			if depth > 0 {
				depth--
			}
			continue
		}
		if t.kind == nodeText || t.name == "." {
			continue
		}
		if depth == 0 {
			if root := rootOf(t.name); root != "" && !seen[root] {
				seen[root] = true
				roots = append(roots, root)
			}
		}
		if t.kind == nodeSection || t.kind == nodeInverted {
			depth++
		}
	}
	return roots
}

func rootOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func missingVariables(placeholders []string, vars map[string]any) []string {
	var missing []string
	for _, name := range placeholders {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func tokenizeMustache(template string) ([]mustacheToken, error) {
	var tokens []mustacheToken
	rest := template
	for len(rest) > 0 {
		open := strings.Index(rest, "{{")
		if open < 0 {
			tokens = append(tokens, mustacheToken{kind: nodeText, text: rest})
			break
		}
		if open > 0 {
			tokens = append(tokens, mustacheToken{kind: nodeText, text: rest[:open]})
		}
		rest = rest[open+2:]

		// {{{name}}} is the triple-brace unescaped form.
		if strings.HasPrefix(rest, "{") {
			end := strings.Index(rest, "}}}")
			if end < 0 {
				return nil, fmt.Errorf("unclosed tag near %q", preview(rest))
			}
			name := strings.TrimSpace(rest[1:end])
			if name == "" {
				return nil, fmt.Errorf("empty tag near %q", preview(rest))
			}
			tokens = append(tokens, mustacheToken{kind: nodeUnescaped, name: name})
			rest = rest[end+3:]
			continue
		}

		end := strings.Index(rest, "}}")
		if end < 0 {
			return nil, fmt.Errorf("unclosed tag near %q", preview(rest))
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]
		if body == "" {
			return nil, fmt.Errorf("empty tag")
		}

		name := strings.TrimSpace(body[1:])
		switch body[0] {
		case '#':
			tokens = append(tokens, mustacheToken{kind: nodeSection, name: name})
		case '^':
			tokens = append(tokens, mustacheToken{kind: nodeInverted, name: name})
		case '/':
			tokens = append(tokens, mustacheToken{sectionClose: true, name: name})
		case '&':
			tokens = append(tokens, mustacheToken{kind: nodeUnescaped, name: name})
		case '!':
			// comment, dropped
		case '>':
			return nil, fmt.Errorf("partial tags are not supported: {{%s}}", body)
		default:
			tokens = append(tokens, mustacheToken{kind: nodeVariable, name: body})
		}
	}
	return tokens, nil
}

func preview(s string) string {
	if len(s) > 24 {
		return s[:24]
	}
	return s
}

func buildMustacheTree(tokens []mustacheToken) ([]mustacheNode, error) {
	root := &mustacheNode{}
	stack := []*mustacheNode{root}
	for _, t := range tokens {
		top := stack[len(stack)-1]
		switch {
		case t.sectionClose:
			if len(stack) == 1 {
				return nil, fmt.Errorf("unexpected section close {{/%s}}", t.name)
			}
			if top.name != t.name {
				return nil, fmt.Errorf("section close {{/%s}} does not match open {{#%s}}", t.name, top.name)
			}
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, *top)
		case t.kind == nodeSection || t.kind == nodeInverted:
			stack = append(stack, &mustacheNode{kind: t.kind, name: t.name})
		default:
			top.children = append(top.children, mustacheNode{kind: t.kind, name: t.name, text: t.text})
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed section {{#%s}}", stack[len(stack)-1].name)
	}
	return root.children, nil
}

func renderMustacheNodes(nodes []mustacheNode, stack []any, sb *strings.Builder) {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.text)
		case nodeVariable, nodeUnescaped:
			if v, ok := lookupValue(stack, n.name); ok {
				sb.WriteString(stringifyValue(v))
			}
		case nodeSection:
			v, _ := lookupValue(stack, n.name)
			if isFalsy(v) {
				continue
			}
			if items, ok := asList(v); ok {
				for _, item := range items {
					renderMustacheNodes(n.children, pushContext(stack, item), sb)
				}
				continue
			}
			renderMustacheNodes(n.children, pushContext(stack, v), sb)
		case nodeInverted:
			v, _ := lookupValue(stack, n.name)
			if isFalsy(v) {
				renderMustacheNodes(n.children, stack, sb)
			}
		}
	}
}

func pushContext(stack []any, v any) []any {
	next := make([]any, len(stack)+1)
	copy(next, stack)
	next[len(stack)] = v
	return next
}

// lookupValue resolves a dotted name against the context stack, innermost
// frame first. "." names the current context.
func lookupValue(stack []any, name string) (any, bool) {
	if name == "." {
		if len(stack) == 0 {
			return nil, false
		}
		return stack[len(stack)-1], true
	}

	parts := strings.Split(name, ".")
	var current any
	found := false
	for i := len(stack) - 1; i >= 0; i-- {
		if m, ok := stack[i].(map[string]any); ok {
			if v, ok := m[parts[0]]; ok {
				current = v
				found = true
				break
			}
		}
	}
	if !found {
		return nil, false
	}
	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array || rv.Kind() == reflect.Map {
		return rv.Len() == 0
	}
	return false
}

func asList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
