package netpolicy

import (
	"context"
	"fmt"
	"net"
)

// Mode controls which HTTP methods the Limited mode permits.
type Mode string

const (
	ModeLimited Mode = "limited"
	ModeFull    Mode = "full"
)

func (m Mode) allowsMethod(method string) bool {
	if m == ModeFull {
		return true
	}
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}

// Decision is the outcome of evaluating a single outbound request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Source names the policy stage that produced a Decision, for logging and
// for the structured BlockedRequest record.
type Source string

const (
	SourceProxyState Source = "ProxyState"
	SourceModeGuard  Source = "ModeGuard"
	SourceHostList   Source = "HostList"
	SourceDecider    Source = "Decider"
)

// Reason is a short machine-readable denial code.
type Reason string

const (
	ReasonProxyDisabled    Reason = "proxy_disabled"
	ReasonMethodNotAllowed Reason = "method_not_allowed"
	ReasonSSRFBlocked      Reason = "ssrf_blocked"
	ReasonDeniedHost       Reason = "denied_host"
	ReasonHostNotAllowed   Reason = "host_not_allowed"
	ReasonDeciderDenied    Reason = "decider_denied"
)

// Decider lets a caller plug in an external allow/deny authority consulted
// after the built-in host-list checks pass.
type Decider interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Request describes a single outbound request awaiting a policy decision.
type Request struct {
	Method   string
	Host     string
	Port     int
	Protocol string // "http", "https", "socks5", ...
	Client   string // peer address of the connecting sandboxed process
}

// BlockedRequest is the structured record emitted for every denial, per the
// design's requirement that the transport error's human message embed these
// fields.
type BlockedRequest struct {
	Host     string
	Port     int
	Reason   Reason
	Client   string
	Method   string
	Mode     Mode
	Protocol string
	Decision Decision
	Source   Source
}

func (b BlockedRequest) Error() string {
	return fmt.Sprintf(
		"network policy denied %s://%s:%d (method=%s mode=%s reason=%s source=%s client=%s)",
		b.Protocol, b.Host, b.Port, b.Method, b.Mode, b.Reason, b.Source, b.Client,
	)
}

// Config is the static policy configuration: mode, allow/deny host globs,
// Unix-socket passthrough paths, and the two "dangerously allow
// non-loopback" escape hatches.
type Config struct {
	Enabled bool
	Mode    Mode

	AllowHosts []string
	DenyHosts  []string

	UnixSocketPaths []string

	DangerouslyAllowNonLoopbackHTTP  bool
	DangerouslyAllowNonLoopbackSOCKS bool

	Decider Decider
}

// Policy evaluates outbound requests against a Config. It is safe for
// concurrent use; Config is read-only after construction.
type Policy struct {
	cfg Config
}

func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// HasUnixSocketPassthrough reports whether any Unix-socket passthrough path
// is configured. When true, every listener is clamped to loopback
// regardless of the dangerous flags.
func (p *Policy) HasUnixSocketPassthrough() bool {
	return len(p.cfg.UnixSocketPaths) > 0
}

// ListenHostHTTP returns the address the HTTP/HTTPS forward proxy must bind,
// honoring loopback clamping.
func (p *Policy) ListenHostHTTP() string {
	if p.HasUnixSocketPassthrough() || !p.cfg.DangerouslyAllowNonLoopbackHTTP {
		return "127.0.0.1"
	}
	return "0.0.0.0"
}

// ListenHostSOCKS returns the address the SOCKS5 proxy must bind, honoring
// loopback clamping.
func (p *Policy) ListenHostSOCKS() string {
	if p.HasUnixSocketPassthrough() || !p.cfg.DangerouslyAllowNonLoopbackSOCKS {
		return "127.0.0.1"
	}
	return "0.0.0.0"
}

// ListenHostAdmin returns the address the admin listener must bind. The
// admin surface never gets the "dangerous" escape hatch of its own; it
// follows the HTTP proxy's clamping state.
func (p *Policy) ListenHostAdmin() string {
	if p.HasUnixSocketPassthrough() {
		return "127.0.0.1"
	}
	return p.ListenHostHTTP()
}

// resolve looks up the IP addresses a host literal or DNS name designates.
// An IP literal resolves to itself; anything else goes through DNS.
var lookupIP = net.LookupIP

func resolveHost(host string) ([]net.IP, error) {
	if ip := parseIP(normalizeHost(host)); ip != nil {
		return []net.IP{ip}, nil
	}
	return lookupIP(host)
}

// Decide runs the seven-step decision algorithm against req and returns nil
// when the request is allowed, or a *BlockedRequest describing the denial.
func (p *Policy) Decide(ctx context.Context, req Request) error {
	if !p.cfg.Enabled {
		return p.deny(req, ReasonProxyDisabled, SourceProxyState)
	}

	if !p.cfg.Mode.allowsMethod(req.Method) {
		return p.deny(req, ReasonMethodNotAllowed, SourceModeGuard)
	}

	ips, err := resolveHost(req.Host)
	if err != nil {
		return fmt.Errorf("netpolicy: resolve host %q: %w", req.Host, err)
	}
	for _, ip := range ips {
		if isNonPublicIP(ip) && !matchAny(p.cfg.AllowHosts, req.Host) {
			return p.deny(req, ReasonSSRFBlocked, SourceHostList)
		}
	}

	if matchAny(p.cfg.DenyHosts, req.Host) {
		return p.deny(req, ReasonDeniedHost, SourceHostList)
	}

	if len(p.cfg.AllowHosts) > 0 && !matchAny(p.cfg.AllowHosts, req.Host) {
		return p.deny(req, ReasonHostNotAllowed, SourceHostList)
	}

	if p.cfg.Decider != nil {
		decision, err := p.cfg.Decider.Decide(ctx, req)
		if err != nil {
			return fmt.Errorf("netpolicy: decider: %w", err)
		}
		if decision == DecisionDeny {
			return p.deny(req, ReasonDeciderDenied, SourceDecider)
		}
	}

	return nil
}

func (p *Policy) deny(req Request, reason Reason, source Source) *BlockedRequest {
	return &BlockedRequest{
		Host:     req.Host,
		Port:     req.Port,
		Reason:   reason,
		Client:   req.Client,
		Method:   req.Method,
		Mode:     p.cfg.Mode,
		Protocol: req.Protocol,
		Decision: DecisionDeny,
		Source:   source,
	}
}
