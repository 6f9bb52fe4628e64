package template

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"notifyhub/internal/domain/notify"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestRenderSubstitutesVariables(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "play", TitleTemplate: "{{user}}开始播放 {{title}}", BodyTemplate: "{{ content }}"}

	got, err := e.Render(tpl, map[string]any{"user": "Alice", "title": "Movie", "content": "enjoy"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Title != "Alice开始播放 Movie" {
		t.Errorf("title = %q, want %q", got.Title, "Alice开始播放 Movie")
	}
	if got.Body != "enjoy" {
		t.Errorf("body = %q, want %q", got.Body, "enjoy")
	}
}

func TestRenderMissingVariableIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "play", TitleTemplate: "{{user}}开始播放 {{title}}"}

	got, err := e.Render(tpl, map[string]any{"user": "Alice"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Title != "Alice开始播放 " {
		t.Errorf("title = %q, want %q", got.Title, "Alice开始播放 ")
	}
}

func TestRenderDoesNotEscapeHTML(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "raw", BodyTemplate: "{{ content }}"}

	got, err := e.Render(tpl, map[string]any{"content": `<b>"Tom & Jerry"</b>`})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Body != `<b>"Tom & Jerry"</b>` {
		t.Errorf("body = %q", got.Body)
	}
}

func TestRenderLoopAndFilters(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{
		ID:            "report",
		TitleTemplate: `{{ heading|default:"Report" }}`,
		BodyTemplate:  `{% for r in rows %}{{ r.name|upper }}={{ r.ok }};{% endfor %}`,
	}
	data := map[string]any{
		"rows": []map[string]any{
			{"name": "db", "ok": true},
			{"name": "media", "ok": false},
		},
	}

	got, err := e.Render(tpl, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Title != "Report" {
		t.Errorf("title = %q, want Report", got.Title)
	}
	if got.Body != "DB=True;MEDIA=False;" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "t", TitleTemplate: "{{ a }}-{{ b }}", BodyTemplate: "{% for x in xs %}{{ x }}{% endfor %}"}
	data := map[string]any{"a": "1", "b": 2, "xs": []int{3, 4, 5}}

	first, err := e.Render(tpl, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Render(tpl, data)
			if err != nil || got != first {
				t.Errorf("Render() = %+v, %v; want %+v", got, err, first)
			}
		}()
	}
	wg.Wait()
}

func TestCompileSyntaxError(t *testing.T) {
	e := newTestEngine(t)
	err := e.Compile(notify.Template{ID: "bad", TitleTemplate: "{% if x %}unterminated"})
	if !errors.Is(err, notify.ErrTemplateSyntax) {
		t.Fatalf("Compile() error = %v, want ErrTemplateSyntax", err)
	}
}

func TestBannedTagsRejected(t *testing.T) {
	e := newTestEngine(t)
	for _, src := range []string{
		`{% include "secrets.txt" %}`,
		`{% now "2006" %}`,
	} {
		err := e.Compile(notify.Template{ID: "x", BodyTemplate: src})
		if !errors.Is(err, notify.ErrTemplateSyntax) {
			t.Errorf("Compile(%q) error = %v, want ErrTemplateSyntax", src, err)
		}
	}
}

func TestBuiltinsCompileAndRender(t *testing.T) {
	e := newTestEngine(t)
	for _, tpl := range Builtins() {
		if err := e.Compile(tpl); err != nil {
			t.Fatalf("Compile(%s) error = %v", tpl.ID, err)
		}
	}

	var media notify.Template
	for _, tpl := range Builtins() {
		if tpl.Kind == notify.KindMediaAdded {
			media = tpl
		}
	}
	got, err := e.Render(media, map[string]any{
		"items": []map[string]any{{"name": "Dune", "year": 2021}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Title != "New media added" {
		t.Errorf("title = %q", got.Title)
	}
	if !strings.Contains(got.Body, "- Dune (2021)") {
		t.Errorf("body = %q, want it to list Dune", got.Body)
	}
}

func TestRenderIgnoresKeysThatAreNotIdentifiers(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "g", TitleTemplate: "{{ title }}", BodyTemplate: "{{ content }} {{ ctx.user }}"}
	data := map[string]any{
		"title":      "T",
		"content":    "C",
		"用户":         "x",
		"user-name":  "y",
		"media.type": "movie",
		"ctx":        map[string]any{"user": "alice", "user-name": "y"},
	}

	got, err := e.Render(tpl, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Title != "T" || got.Body != "C alice" {
		t.Errorf("Render() = %+v", got)
	}
}

func TestRenderLoopOverNonIterableFails(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{ID: "report", BodyTemplate: "{% for r in rows %}{{ r }}{% endfor %}"}

	for name, rows := range map[string]any{
		"int":    5,
		"struct": struct{ A int }{1},
		"bool":   true,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Render(tpl, map[string]any{"rows": rows})
			if !errors.Is(err, notify.ErrTemplateRender) {
				t.Fatalf("Render() error = %v, want ErrTemplateRender", err)
			}
		})
	}
}

func TestRenderLoopOverIterables(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name string
		src  string
		data map[string]any
		want string
	}{
		{"slice", "{% for x in xs %}{{ x }}{% endfor %}", map[string]any{"xs": []int{1, 2, 3}}, "123"},
		{"array", "{% for x in xs %}{{ x }}{% endfor %}", map[string]any{"xs": [2]string{"a", "b"}}, "ab"},
		{"map", "{% for k, v in m sorted %}{{ k }}={{ v }};{% endfor %}", map[string]any{"m": map[string]int{"b": 2, "a": 1}}, "a=1;b=2;"},
		{"string", "{% for c in s %}{{ c }}.{% endfor %}", map[string]any{"s": "ab"}, "a.b."},
		{"missing", "{% for x in xs %}{{ x }}{% empty %}none{% endfor %}", map[string]any{}, "none"},
		{"empty", "{% for x in xs %}{{ x }}{% empty %}none{% endfor %}", map[string]any{"xs": []int{}}, "none"},
		{"pointer", "{% for x in xs %}{{ x }}{% endfor %}", map[string]any{"xs": &[]int{7}}, "7"},
		{"counters", "{% for x in xs %}{{ forloop.Counter }}{% if forloop.Last %}!{% endif %}{% endfor %}", map[string]any{"xs": []int{5, 6}}, "12!"},
		{"nested", "{% for a in xs %}{% for b in xs %}{{ forloop.Parentloop.Counter }}{{ b }} {% endfor %}{% endfor %}", map[string]any{"xs": []int{1, 2}}, "11 12 21 22 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.RenderString(tt.src, tt.data)
			if err != nil {
				t.Fatalf("RenderString() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderUndefinedFilterIsSyntaxError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Render(notify.Template{ID: "x", BodyTemplate: "{{ content|nosuchfilter }}"}, map[string]any{"content": "c"})
	if !errors.Is(err, notify.ErrTemplateSyntax) {
		t.Fatalf("Render() error = %v, want ErrTemplateSyntax", err)
	}
}

func TestConcurrentRendersDoNotShareContext(t *testing.T) {
	e := newTestEngine(t)
	tpl := notify.Template{
		ID:            "report",
		TitleTemplate: "{{ title }}",
		BodyTemplate:  "{% for r in rows %}{{ r }},{% endfor %}{{ extra }}",
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := map[string]any{
				"title": fmt.Sprintf("t%d", i),
				"rows":  []int{i, i + 1},
			}
			want := notify.Rendered{Title: fmt.Sprintf("t%d", i), Body: fmt.Sprintf("%d,%d,", i, i+1)}
			if i%2 == 0 {
				data["extra"] = "even"
				want.Body += "even"
			}
			got, err := e.Render(tpl, data)
			if err != nil {
				t.Errorf("Render(%d) error = %v", i, err)
				return
			}
			if got != want {
				t.Errorf("Render(%d) = %+v, want %+v", i, got, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestRetainDropsUnusedSources(t *testing.T) {
	e := newTestEngine(t)
	old := notify.Template{ID: "old", TitleTemplate: "old {{ title }}", BodyTemplate: "old {{ content }}"}
	kept := notify.Template{ID: "kept", TitleTemplate: "{{ title }}", BodyTemplate: "{{ content }}"}
	for _, tpl := range []notify.Template{old, kept} {
		if err := e.Compile(tpl); err != nil {
			t.Fatalf("Compile(%s) error = %v", tpl.ID, err)
		}
	}

	e.Retain([]notify.Template{kept})

	var cached []string
	e.cache.Range(func(k, _ any) bool {
		cached = append(cached, k.(string))
		return true
	})
	if len(cached) != 2 {
		t.Fatalf("cached = %q, want the two sources of kept", cached)
	}
	for _, src := range cached {
		if strings.HasPrefix(src, "old") {
			t.Errorf("source %q still cached", src)
		}
	}

	got, err := e.Render(old, map[string]any{"title": "T"})
	if err != nil || got.Title != "old T" {
		t.Errorf("Render() after Retain = %+v, %v", got, err)
	}
}
