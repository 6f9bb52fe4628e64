package template

import "notifyhub/internal/domain/notify"

// Builtins returns the templates shipped with the service. Routes reference
// them as builtin:<kind>.
func Builtins() []notify.Template {
	return []notify.Template{
		{
			ID:            notify.DefaultTemplateID,
			Kind:          notify.KindGeneric,
			TitleTemplate: "{{ title }}",
			BodyTemplate:  "{{ content }}",
		},
		{
			ID:            "builtin:media_added",
			Kind:          notify.KindMediaAdded,
			TitleTemplate: `{{ title|default:"New media added" }}`,
			BodyTemplate: `{% if content %}{{ content }}
{% endif %}{% for item in items %}- {{ item.name }}{% if item.year %} ({{ item.year }}){% endif %}{% if item.type %} [{{ item.type }}]{% endif %}
{% endfor %}{% if server %}Server: {{ server }}{% endif %}`,
		},
		{
			ID:            "builtin:playback_started",
			Kind:          notify.KindPlaybackStarted,
			TitleTemplate: `{% if user %}{{ user }} started playing {% endif %}{{ title }}`,
			BodyTemplate: `{% if content %}{{ content }}
{% endif %}{% if device %}Device: {{ device }}
{% endif %}{% if client %}Client: {{ client }}
{% endif %}{% if ip %}IP: {{ ip }}{% endif %}`,
		},
		{
			ID:            "builtin:backup_report",
			Kind:          notify.KindBackupReport,
			TitleTemplate: `{{ title|default:"Backup report" }}`,
			BodyTemplate: `{% if content %}{{ content }}
{% endif %}{% for row in rows %}{{ row.name }}: {{ row.status }}{% if row.size %} ({{ row.size }}){% endif %}{% if row.duration %} in {{ row.duration }}{% endif %}
{% endfor %}{% if summary %}{{ summary }}{% endif %}`,
		},
	}
}
