// Package resources classifies broker resources into the semantic
// categories the policy decisions are written against. Classification
// is pure; nothing here touches the data source.
package resources

import (
	"fmt"
	"strings"
)

// Kind is the broker resource kind.
type Kind string

// Resource kinds as the broker sends them.
const (
	KindExchange Kind = "exchange"
	KindQueue    Kind = "queue"
	KindTopic    Kind = "topic"
)

// ParseKind validates a wire-format resource kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindExchange, KindQueue, KindTopic:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Action is a broker permission.
type Action string

// Actions as the broker sends them. ActionNone stands for vhost
// access checks, which carry no permission field.
const (
	ActionConfigure Action = "configure"
	ActionWrite     Action = "write"
	ActionRead      Action = "read"
	ActionNone      Action = "none"
)

// ParseAction validates a wire-format permission.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionConfigure, ActionWrite, ActionRead:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Category is the semantic class of a resource.
type Category string

// Categories.
const (
	// CategorySystem covers names the broker reserves for itself.
	CategorySystem Category = "system"

	// CategoryPrivateAutogen covers auto-generated client-local
	// queues.
	CategoryPrivateAutogen Category = "private_autogen"

	// CategoryPushExchange is the principal organization's own push
	// exchange, or a routing key scoped to that organization.
	CategoryPushExchange Category = "push_exchange"

	// CategorySharedInfrastructure covers explicitly configured
	// broker-wide plumbing.
	CategorySharedInfrastructure Category = "shared_infrastructure"

	// CategoryUnknown is everything else and always denies.
	CategoryUnknown Category = "unknown"
)

// Classifier holds the configured name spaces classification runs
// against.
type Classifier struct {
	defaultVhost    string
	autogenPrefix   string
	sharedExchanges map[string]struct{}
	sharedQueues    map[string]struct{}
}

// NewClassifier builds a Classifier for the configured vhost, the
// autogenerated-queue prefix, and the shared infrastructure names.
func NewClassifier(defaultVhost, autogenPrefix string, sharedExchanges, sharedQueues []string) *Classifier {
	c := &Classifier{
		defaultVhost:    defaultVhost,
		autogenPrefix:   autogenPrefix,
		sharedExchanges: make(map[string]struct{}, len(sharedExchanges)),
		sharedQueues:    make(map[string]struct{}, len(sharedQueues)),
	}
	for _, name := range sharedExchanges {
		c.sharedExchanges[name] = struct{}{}
	}
	for _, name := range sharedQueues {
		c.sharedQueues[name] = struct{}{}
	}
	return c
}

// VhostAllowed reports whether the requested vhost is the single
// configured one. Anything else is rejected before classification.
func (c *Classifier) VhostAllowed(vhost string) bool {
	return vhost == c.defaultVhost
}

// Classify maps a resource to its category. pushExchange is the
// principal organization's push-exchange name, empty for components.
// The caller has already validated the vhost.
func (c *Classifier) Classify(kind Kind, name, pushExchange string) Category {
	switch {
	case kind == KindExchange && strings.HasPrefix(name, "amq."):
		return CategorySystem
	case kind == KindQueue && c.autogenPrefix != "" && strings.HasPrefix(name, c.autogenPrefix):
		return CategoryPrivateAutogen
	case kind == KindExchange && pushExchange != "" && name == pushExchange:
		return CategoryPushExchange
	case kind == KindExchange && contains(c.sharedExchanges, name):
		return CategorySharedInfrastructure
	case kind == KindQueue && contains(c.sharedQueues, name):
		return CategorySharedInfrastructure
	default:
		return CategoryUnknown
	}
}

// ClassifyTopic maps a topic routing key to a category relative to
// the principal's organization. Organization ids contain dots, so the
// scope matches as a whole dot-separated prefix, not as the first
// segment. Wildcards cannot occur in a matching scope.
func ClassifyTopic(routingKey, orgID string) Category {
	if orgID == "" {
		return CategoryUnknown
	}
	if routingKey == orgID || strings.HasPrefix(routingKey, orgID+".") {
		return CategoryPushExchange
	}
	return CategoryUnknown
}

func contains(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}
