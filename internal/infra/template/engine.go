package template

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"notifyhub/internal/domain/notify"

	"github.com/flosch/pongo2/v6"
)

var (
	_ notify.Renderer         = (*Engine)(nil)
	_ notify.TemplateRetainer = (*Engine)(nil)
)

// Tags that reach outside the template or make output depend on the clock.
var bannedTags = []string{"include", "import", "extends", "ssi", "now", "lorem"}

// Top-level context keys pongo2 accepts.
var identifier = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Engine renders notification templates with pongo2 ({{ var }}, {% for %},
// filters). Output is plain text: autoescaping is off. Undefined variables
// render as empty strings, and top-level keys that are not identifiers are
// left out of the context.
type Engine struct {
	set   *pongo2.TemplateSet
	cache sync.Map // source -> *pongo2.Template
}

// NewEngine creates a sandboxed template engine.
func NewEngine() (*Engine, error) {
	set := pongo2.NewSet("notifyhub", noLoader{})
	for _, tag := range bannedTags {
		if err := set.BanTag(tag); err != nil {
			return nil, fmt.Errorf("banning tag %s: %w", tag, err)
		}
	}
	return &Engine{set: set}, nil
}

// Compile checks both sources of a template and caches the result.
func (e *Engine) Compile(tpl notify.Template) error {
	if _, err := e.compile(tpl.TitleTemplate); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if _, err := e.compile(tpl.BodyTemplate); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	return nil
}

// Render executes title and body against data. Rendering is a pure function
// of its inputs.
func (e *Engine) Render(tpl notify.Template, data map[string]any) (notify.Rendered, error) {
	title, err := e.execute(tpl.TitleTemplate, data)
	if err != nil {
		return notify.Rendered{}, fmt.Errorf("template %s title: %w", tpl.ID, err)
	}
	body, err := e.execute(tpl.BodyTemplate, data)
	if err != nil {
		return notify.Rendered{}, fmt.Errorf("template %s body: %w", tpl.ID, err)
	}
	return notify.Rendered{Title: title, Body: body}, nil
}

// RenderString renders a single source string.
func (e *Engine) RenderString(src string, data map[string]any) (string, error) {
	return e.execute(src, data)
}

func (e *Engine) execute(src string, data map[string]any) (string, error) {
	if src == "" {
		return "", nil
	}
	t, err := e.compile(src)
	if err != nil {
		return "", err
	}
	out, err := t.Execute(renderContext(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", notify.ErrTemplateRender, err)
	}
	return out, nil
}

// Retain drops compiled sources that none of templates use. Sources
// rendered later are compiled again on demand.
func (e *Engine) Retain(templates []notify.Template) {
	keep := make(map[string]struct{}, 2*len(templates))
	for _, t := range templates {
		keep[t.TitleTemplate] = struct{}{}
		keep[t.BodyTemplate] = struct{}{}
	}
	e.cache.Range(func(k, _ any) bool {
		if _, ok := keep[k.(string)]; !ok {
			e.cache.Delete(k)
		}
		return true
	})
}

func renderContext(data map[string]any) pongo2.Context {
	ctx := make(pongo2.Context, len(data))
	for k, v := range data {
		if identifier.MatchString(k) {
			ctx[k] = v
		}
	}
	return ctx
}

func (e *Engine) compile(src string) (*pongo2.Template, error) {
	if cached, ok := e.cache.Load(src); ok {
		return cached.(*pongo2.Template), nil
	}
	t, err := e.set.FromString("{% autoescape off %}" + src + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", notify.ErrTemplateSyntax, err)
	}
	e.cache.Store(src, t)
	return t, nil
}

// noLoader refuses every file lookup so templates cannot read the filesystem.
type noLoader struct{}

func (noLoader) Abs(_, name string) string { return name }

func (noLoader) Get(path string) (io.Reader, error) {
	return nil, errors.New("template loading is disabled: " + path)
}
