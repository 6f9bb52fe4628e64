package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"notifyhub/internal/domain/notify"
)

// channelRow is the stored shape of a channel in the channels table.
type channelRow struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	Name       string         `json:"name"`
	Type       string         `json:"type" gorm:"not null"`
	Config     map[string]any `json:"config" gorm:"serializer:json"`
	Enabled    bool           `json:"enabled"`
	TimeoutMS  int64          `json:"timeout_ms"`
	RatePerSec float64        `json:"rate_per_sec"`
}

func (channelRow) TableName() string { return "channels" }

// routeRow is the stored shape of a route in the routes table.
type routeRow struct {
	ID       string                  `json:"id" gorm:"primaryKey"`
	Name     string                  `json:"name"`
	Enabled  bool                    `json:"enabled"`
	Policy   string                  `json:"policy"`
	Bindings []notify.ChannelBinding `json:"bindings" gorm:"serializer:json"`
}

func (routeRow) TableName() string { return "routes" }

// templateRow is the stored shape of a template in the templates table.
type templateRow struct {
	ID            string `json:"id" gorm:"primaryKey"`
	Kind          string `json:"kind"`
	TitleTemplate string `json:"title_template"`
	BodyTemplate  string `json:"body_template"`
}

func (templateRow) TableName() string { return "templates" }

func (r channelRow) toChannel() notify.Channel {
	return notify.Channel{
		ID:         r.ID,
		Name:       r.Name,
		Type:       notify.ChannelType(r.Type),
		Config:     stringifyConfig(r.Config),
		Enabled:    r.Enabled,
		Timeout:    time.Duration(r.TimeoutMS) * time.Millisecond,
		RatePerSec: r.RatePerSec,
	}
}

func (r routeRow) toRoute() notify.Route {
	return notify.Route{
		ID:       r.ID,
		Name:     r.Name,
		Enabled:  r.Enabled,
		Policy:   notify.Policy(r.Policy),
		Bindings: r.Bindings,
	}
}

func (r templateRow) toTemplate() notify.Template {
	return notify.Template{
		ID:            r.ID,
		Kind:          notify.TemplateKind(r.Kind),
		TitleTemplate: r.TitleTemplate,
		BodyTemplate:  r.BodyTemplate,
	}
}

func channelToRow(ch notify.Channel) channelRow {
	cfg := make(map[string]any, len(ch.Config))
	for k, v := range ch.Config {
		cfg[k] = v
	}
	return channelRow{
		ID:         ch.ID,
		Name:       ch.Name,
		Type:       string(ch.Type),
		Config:     cfg,
		Enabled:    ch.Enabled,
		TimeoutMS:  ch.Timeout.Milliseconds(),
		RatePerSec: ch.RatePerSec,
	}
}

// stringifyConfig flattens JSON config values into strings. Numbers keep
// their plain decimal form so ids like agent_id survive.
func stringifyConfig(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case json.Number:
			out[k] = val.String()
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
	}
	return out
}

func rowsToData(channels []channelRow, routes []routeRow, templates []templateRow) notify.SnapshotData {
	data := notify.SnapshotData{
		Channels:  make([]notify.Channel, 0, len(channels)),
		Routes:    make([]notify.Route, 0, len(routes)),
		Templates: make([]notify.Template, 0, len(templates)),
	}
	for _, r := range channels {
		data.Channels = append(data.Channels, r.toChannel())
	}
	for _, r := range routes {
		data.Routes = append(data.Routes, r.toRoute())
	}
	for _, r := range templates {
		data.Templates = append(data.Templates, r.toTemplate())
	}
	return data
}
