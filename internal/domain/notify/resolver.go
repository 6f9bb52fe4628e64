package notify

import (
	"notifyhub/internal/common"
)

// Target is one resolved delivery destination.
type Target struct {
	Channel  Channel
	Template Template
}

// resolveError carries both the domain sentinel and the HTTP-facing error so
// callers can match either with errors.Is / errors.As.
type resolveError struct {
	sentinel error
	status   error
}

func (e *resolveError) Error() string   { return e.status.Error() }
func (e *resolveError) Unwrap() []error { return []error{e.sentinel, e.status} }

// Resolve expands a route into its enabled targets in binding order. A
// channel bound more than once is kept at its first position. The returned
// policy is empty when the route does not set one.
func Resolve(snap *Snapshot, routeID string) ([]Target, Policy, error) {
	route, ok := snap.Route(routeID)
	if !ok {
		return nil, "", &resolveError{ErrRouteNotFound, common.NewNotFoundError("route", routeID)}
	}
	if !route.Enabled {
		return nil, "", &resolveError{ErrRouteDisabled, common.NewConflictError("route", routeID, "is disabled")}
	}

	seen := make(map[string]struct{}, len(route.Bindings))
	targets := make([]Target, 0, len(route.Bindings))
	for _, b := range route.Bindings {
		if _, dup := seen[b.ChannelID]; dup {
			continue
		}
		seen[b.ChannelID] = struct{}{}

		ch, ok := snap.Channel(b.ChannelID)
		if !ok || !ch.Enabled {
			continue
		}
		tplID := b.TemplateID
		if tplID == "" {
			tplID = DefaultTemplateID
		}
		tpl, ok := snap.Template(tplID)
		if !ok {
			continue
		}
		targets = append(targets, Target{Channel: ch, Template: tpl})
	}
	if len(targets) == 0 {
		return nil, "", &resolveError{ErrRouteEmpty, common.NewUnprocessableError("route '" + routeID + "' has no enabled channels")}
	}

	return targets, route.Policy, nil
}
