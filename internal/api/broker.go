// Package api implements the four decision endpoints the broker's
// HTTP auth backend contract defines, plus the operational health
// probe.
//
// The broker reads the response body, not the status: every
// well-formed request is answered 200 with a plaintext verdict of
// "allow", "allow <tags>", or "deny". Nothing else is ever written,
// and no internal failure detail reaches the body.
package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MahdiBaghbani/brokerauth-go/internal/appctx"
	"github.com/MahdiBaghbani/brokerauth-go/internal/identity"
	"github.com/MahdiBaghbani/brokerauth-go/internal/policy"
	"github.com/MahdiBaghbani/brokerauth-go/internal/resources"
)

// Internal error kinds. They exist for log lines only; every one of
// them collapses to "deny" on the wire.
const (
	kindMalformedRequest      = "malformed_request"
	kindUnknownIdentity       = "unknown_identity"
	kindBadCredential         = "bad_credential"
	kindDataSourceUnavailable = "data_source_unavailable"
	kindPolicyDeny            = "policy_deny"
)

// BrokerHandler serves the broker decision endpoints.
type BrokerHandler struct {
	resolver *identity.Resolver
	engine   *policy.Engine
}

// NewBrokerHandler creates the handler for the four decision
// endpoints.
func NewBrokerHandler(resolver *identity.Resolver, engine *policy.Engine) *BrokerHandler {
	return &BrokerHandler{
		resolver: resolver,
		engine:   engine,
	}
}

// User handles POST /user: authenticate a login/password pair and
// report the session tags.
func (h *BrokerHandler) User(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r, "username")
	if !ok {
		return
	}
	// The password key must be present but may be empty: the broker
	// sends password= for EXTERNAL (client-certificate) logins.
	if !form.Has("password") {
		denyMalformed(w, r, "missing field password")
		return
	}

	p, ok := h.authenticate(w, r, form.Get("username"), form.Get("password"))
	if !ok {
		return
	}

	writeDecision(w, r, p, h.engine.UserDecision(p))
}

// Vhost handles POST /vhost: may the principal touch the virtual
// host. The ip field is an opaque log datum; no IP policy exists.
func (h *BrokerHandler) Vhost(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r, "username", "vhost", "ip")
	if !ok {
		return
	}

	p, ok := h.resolve(w, r, form.Get("username"))
	if !ok {
		return
	}

	appctx.Logger(r.Context()).Debug("vhost check",
		"username", form.Get("username"),
		"vhost", form.Get("vhost"),
		"client_ip", form.Get("ip"),
	)

	d := h.engine.VhostDecision(p, form.Get("vhost"))
	// The vhost response carries no tag list; tags travel on /user.
	d.Tags = nil
	writeDecision(w, r, p, d)
}

// Resource handles POST /resource: may the principal perform an
// action on an exchange, queue, or topic.
func (h *BrokerHandler) Resource(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r, "username", "vhost", "resource", "name", "permission")
	if !ok {
		return
	}

	kind, err := resources.ParseKind(form.Get("resource"))
	if err != nil {
		denyMalformed(w, r, err.Error())
		return
	}
	action, err := resources.ParseAction(form.Get("permission"))
	if err != nil {
		denyMalformed(w, r, err.Error())
		return
	}

	p, ok := h.resolve(w, r, form.Get("username"))
	if !ok {
		return
	}

	d := h.engine.ResourceDecision(p, form.Get("vhost"), kind, form.Get("name"), action)
	writeDecision(w, r, p, d)
}

// Topic handles POST /topic: may the principal use a routing key on a
// topic exchange. The name field names the exchange; the decision is
// scoped by the routing key alone.
func (h *BrokerHandler) Topic(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r, "username", "vhost", "resource", "name", "permission", "routing_key")
	if !ok {
		return
	}

	if form.Get("resource") != string(resources.KindTopic) {
		denyMalformed(w, r, "resource must be topic")
		return
	}
	action, err := resources.ParseAction(form.Get("permission"))
	if err != nil {
		denyMalformed(w, r, err.Error())
		return
	}

	p, ok := h.resolve(w, r, form.Get("username"))
	if !ok {
		return
	}

	d := h.engine.TopicDecision(p, form.Get("vhost"), form.Get("routing_key"), action)
	writeDecision(w, r, p, d)
}

// authenticate runs full credential resolution for /user.
func (h *BrokerHandler) authenticate(w http.ResponseWriter, r *http.Request, username, password string) (*identity.Principal, bool) {
	p, err := h.resolver.ResolveUser(r.Context(), username, password)
	if err != nil {
		denyResolution(w, r, username, err)
		return nil, false
	}
	return p, true
}

// resolve maps an already-authenticated login to its principal for
// the vhost, resource, and topic checks.
func (h *BrokerHandler) resolve(w http.ResponseWriter, r *http.Request, username string) (*identity.Principal, bool) {
	p, err := h.resolver.ResolvePrincipal(r.Context(), username)
	if err != nil {
		denyResolution(w, r, username, err)
		return nil, false
	}
	return p, true
}

// parseForm parses the request form and checks that every required
// field is present and non-empty. On failure it answers deny and
// reports false.
func parseForm(w http.ResponseWriter, r *http.Request, required ...string) (url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		denyMalformed(w, r, "unparseable form")
		return nil, false
	}
	for _, field := range required {
		if r.PostForm.Get(field) == "" {
			denyMalformed(w, r, "missing field "+field)
			return nil, false
		}
	}
	return r.PostForm, true
}

// denyResolution logs a failed identity resolution at the level its
// kind demands and answers deny.
func denyResolution(w http.ResponseWriter, r *http.Request, username string, err error) {
	logger := appctx.Logger(r.Context())
	switch {
	case errors.Is(err, identity.ErrUnknownIdentity):
		logger.Info("request denied",
			"kind", kindUnknownIdentity,
			"username", username,
		)
	case errors.Is(err, identity.ErrBadCredential):
		logger.Info("request denied",
			"kind", kindBadCredential,
			"username", username,
		)
	default:
		// Anything else is a data-source failure: outage, pool
		// saturation, request deadline.
		logger.Error("request denied",
			"kind", kindDataSourceUnavailable,
			"username", username,
			"error", err,
		)
	}
	WriteDeny(w)
}

// denyMalformed logs a contract violation and answers deny.
func denyMalformed(w http.ResponseWriter, r *http.Request, detail string) {
	appctx.Logger(r.Context()).Warn("request denied",
		"kind", kindMalformedRequest,
		"detail", detail,
	)
	WriteDeny(w)
}

// writeDecision serializes a policy decision.
func writeDecision(w http.ResponseWriter, r *http.Request, p *identity.Principal, d *policy.Decision) {
	logger := appctx.Logger(r.Context())
	if d.Allowed {
		logger.Debug("request allowed",
			"username", p.Login,
			"reason_code", d.ReasonCode,
		)
		WriteAllow(w, d.Tags)
		return
	}
	logger.Info("request denied",
		"kind", kindPolicyDeny,
		"username", p.Login,
		"reason_code", d.ReasonCode,
		"reason", d.Reason,
	)
	WriteDeny(w)
}

// WriteAllow writes the allow verdict with an optional tag list.
// The body is byte-exact: "allow" or "allow tag1 tag2", no trailing
// newline.
func WriteAllow(w http.ResponseWriter, tags []string) {
	body := "allow"
	if len(tags) > 0 {
		body += " " + strings.Join(tags, " ")
	}
	writePlain(w, body)
}

// WriteDeny writes the deny verdict. Also used by the router's
// not-found and method-not-allowed handlers so a misconfigured broker
// still gets a safe verdict.
func WriteDeny(w http.ResponseWriter) {
	writePlain(w, "deny")
}

func writePlain(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
