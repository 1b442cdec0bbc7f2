// Package policy produces the allow/deny verdicts for the broker
// checks. Decisions are pure functions of the principal, the
// classified resource, and configuration; all defaults are deny.
package policy

import (
	"fmt"

	"github.com/MahdiBaghbani/brokerauth-go/internal/identity"
	"github.com/MahdiBaghbani/brokerauth-go/internal/resources"
)

// Decision represents the result of a policy check.
type Decision struct {
	Allowed    bool
	Reason     string
	ReasonCode string
	Tags       []string
}

// Engine evaluates the broker checks against the configured name
// spaces.
type Engine struct {
	classifier *resources.Classifier
}

// NewEngine creates a new policy engine.
func NewEngine(classifier *resources.Classifier) *Engine {
	return &Engine{classifier: classifier}
}

// UserDecision finishes the authentication check. The principal has
// already been resolved, so this attaches the broker-session tags.
func (e *Engine) UserDecision(p *identity.Principal) *Decision {
	return &Decision{
		Allowed:    true,
		Reason:     "credentials accepted",
		ReasonCode: "allowed_" + p.Kind,
		Tags:       p.Tags,
	}
}

// VhostDecision grants vhost access to components and to users whose
// organization consumes the stream API.
func (e *Engine) VhostDecision(p *identity.Principal, vhost string) *Decision {
	if !e.classifier.VhostAllowed(vhost) {
		return vhostMismatch(vhost)
	}

	if p.IsComponent() {
		d := &Decision{
			Allowed:    true,
			Reason:     "component access",
			ReasonCode: "allowed_component",
		}
		if p.IsAdministrator() {
			d.Tags = []string{identity.TagAdministrator}
		}
		return d
	}

	if p.StreamAPI {
		return &Decision{
			Allowed:    true,
			Reason:     "organization consumes the stream api",
			ReasonCode: "allowed_stream_api",
		}
	}

	return &Decision{
		Allowed:    false,
		Reason:     "organization has no stream-api agreement",
		ReasonCode: "denied_no_stream_api",
	}
}

// ResourceDecision evaluates the per-category grants. First match
// wins; everything unmatched is denied.
func (e *Engine) ResourceDecision(p *identity.Principal, vhost string, kind resources.Kind, name string, action resources.Action) *Decision {
	if !e.classifier.VhostAllowed(vhost) {
		return vhostMismatch(vhost)
	}

	category := e.classifier.Classify(kind, name, p.PushExchange)

	if p.IsAdministrator() {
		return &Decision{
			Allowed:    true,
			Reason:     "administrator component",
			ReasonCode: "allowed_administrator",
		}
	}

	if p.IsComponent() {
		if category == resources.CategorySharedInfrastructure {
			return &Decision{
				Allowed:    true,
				Reason:     "shared infrastructure",
				ReasonCode: "allowed_shared_infrastructure",
			}
		}
	} else {
		switch {
		case category == resources.CategoryPushExchange && action == resources.ActionRead:
			return &Decision{
				Allowed:    true,
				Reason:     "read of the organization push exchange",
				ReasonCode: "allowed_push_exchange",
			}
		case category == resources.CategoryPrivateAutogen:
			return &Decision{
				Allowed:    true,
				Reason:     "client-local autogenerated queue",
				ReasonCode: "allowed_private_autogen",
			}
		case category == resources.CategorySystem && action == resources.ActionRead:
			return &Decision{
				Allowed:    true,
				Reason:     "read of a broker-reserved resource",
				ReasonCode: "allowed_system_read",
			}
		}
	}

	if category == resources.CategoryUnknown {
		return &Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("no grant for %s %q", kind, name),
			ReasonCode: "denied_unknown_resource",
		}
	}
	return &Decision{
		Allowed:    false,
		Reason:     fmt.Sprintf("%s not granted on %s", action, category),
		ReasonCode: "not_allowed",
	}
}

// TopicDecision grants read on routing keys scoped to the principal's
// organization and nothing else. Components have no organization, so
// they are never granted topic access here.
func (e *Engine) TopicDecision(p *identity.Principal, vhost, routingKey string, action resources.Action) *Decision {
	if !e.classifier.VhostAllowed(vhost) {
		return vhostMismatch(vhost)
	}

	category := resources.ClassifyTopic(routingKey, p.OrgID)
	if category == resources.CategoryPushExchange && action == resources.ActionRead {
		return &Decision{
			Allowed:    true,
			Reason:     "organization-scoped routing key",
			ReasonCode: "allowed_push_exchange",
		}
	}

	return &Decision{
		Allowed:    false,
		Reason:     fmt.Sprintf("%s not granted on routing key %q", action, routingKey),
		ReasonCode: "denied_topic_scope",
	}
}

func vhostMismatch(vhost string) *Decision {
	return &Decision{
		Allowed:    false,
		Reason:     fmt.Sprintf("vhost %q is not the configured default", vhost),
		ReasonCode: "denied_vhost_mismatch",
	}
}
