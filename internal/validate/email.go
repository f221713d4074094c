package validate

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/normalize"
)

// mxResolver looks up mail exchangers for a domain. Satisfied by
// *net.Resolver; stubbed in tests.
type mxResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// dialFunc opens a connection to an SMTP host. Stubbed in tests.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

// EmailVerifier runs the three-stage deliverability check. Each stage is
// gated on the previous one and bounded by StageTimeout; ambiguous
// outcomes (timeouts, greylisting, policy refusals) resolve to
// StatusUnverified rather than failing the contact.
type EmailVerifier struct {
	resolver     mxResolver
	dial         dialFunc
	stageTimeout time.Duration
	heloDomain   string
	probeSender  string
	skipSMTP     bool

	mu    sync.Mutex
	cache map[string]model.VerificationStatus
}

// Option configures an EmailVerifier.
type Option func(*EmailVerifier)

// WithStageTimeout bounds each network stage.
func WithStageTimeout(d time.Duration) Option {
	return func(v *EmailVerifier) { v.stageTimeout = d }
}

// WithResolver overrides the DNS resolver (for testing).
func WithResolver(r mxResolver) Option {
	return func(v *EmailVerifier) { v.resolver = r }
}

// WithDialer overrides the SMTP dialer (for testing).
func WithDialer(d dialFunc) Option {
	return func(v *EmailVerifier) { v.dial = d }
}

// WithSkipSMTP disables the RCPT probe stage. Use on networks that block
// outbound port 25; MX-positive addresses then stay unverified instead of
// being promoted to valid.
func WithSkipSMTP(skip bool) Option {
	return func(v *EmailVerifier) { v.skipSMTP = skip }
}

// NewEmailVerifier creates a verifier with sane network defaults.
func NewEmailVerifier(opts ...Option) *EmailVerifier {
	v := &EmailVerifier{
		resolver:     net.DefaultResolver,
		stageTimeout: 5 * time.Second,
		heloDomain:   "localhost",
		probeSender:  "probe@localhost",
		cache:        make(map[string]model.VerificationStatus),
	}
	v.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs syntax, MX, and SMTP handshake checks against a normalized
// email contact. Results are cached per verifier instance so repeated
// mentions of the same address across documents cost one probe.
func (v *EmailVerifier) Verify(ctx context.Context, contact model.NormalizedContact) model.VerificationStatus {
	if contact.Channel != model.ChannelEmail || contact.Value == "" {
		return model.StatusInvalid
	}

	addr := contact.Value
	v.mu.Lock()
	if status, ok := v.cache[addr]; ok {
		v.mu.Unlock()
		return status
	}
	v.mu.Unlock()

	status := v.verify(ctx, addr)

	v.mu.Lock()
	v.cache[addr] = status
	v.mu.Unlock()
	return status
}

func (v *EmailVerifier) verify(ctx context.Context, addr string) model.VerificationStatus {
	// Stage 1: syntax. The contact arrives normalized, but re-validate so
	// the verifier stands on its own.
	if _, err := normalize.Email(addr, ""); err != nil {
		return model.StatusInvalid
	}
	domain := normalize.Domain(addr)

	// Stage 2: the domain must publish a mail exchanger.
	mxCtx, cancel := context.WithTimeout(ctx, v.stageTimeout)
	records, err := v.resolver.LookupMX(mxCtx, domain)
	cancel()
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return model.StatusInvalid
		}
		// Timeout or transient resolver failure: inconclusive.
		zap.L().Debug("validate: mx lookup inconclusive",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return model.StatusUnverified
	}
	if len(records) == 0 {
		return model.StatusInvalid
	}

	if v.skipSMTP {
		return model.StatusUnverified
	}

	// Stage 3: non-delivering RCPT probe against the primary exchanger.
	host := strings.TrimSuffix(records[0].Host, ".")
	return v.probe(ctx, host, addr)
}

// probe performs the SMTP handshake up to RCPT TO without sending a
// message. Only an explicit 550-class rejection downgrades the address;
// everything ambiguous stays unverified.
func (v *EmailVerifier) probe(ctx context.Context, host, addr string) model.VerificationStatus {
	dialCtx, cancel := context.WithTimeout(ctx, v.stageTimeout)
	conn, err := v.dial(dialCtx, net.JoinHostPort(host, "25"))
	cancel()
	if err != nil {
		zap.L().Debug("validate: smtp dial failed",
			zap.String("host", host),
			zap.Error(err),
		)
		return model.StatusUnverified
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(v.stageTimeout))

	tc := textproto.NewConn(conn)
	defer tc.Close()

	if _, _, err := tc.ReadResponse(220); err != nil {
		return model.StatusUnverified
	}

	for _, cmd := range []string{
		"HELO " + v.heloDomain,
		"MAIL FROM:<" + v.probeSender + ">",
	} {
		if err := tc.PrintfLine("%s", cmd); err != nil {
			return model.StatusUnverified
		}
		if _, _, err := tc.ReadResponse(250); err != nil {
			return model.StatusUnverified
		}
	}

	if err := tc.PrintfLine("RCPT TO:<%s>", addr); err != nil {
		return model.StatusUnverified
	}
	code, _, err := tc.ReadResponse(-1)
	_ = tc.PrintfLine("QUIT")

	switch {
	case err == nil && code >= 250 && code < 260:
		return model.StatusValid
	case code >= 550 && code < 560:
		// Mailbox explicitly rejected.
		return model.StatusUndeliverable
	default:
		// 4xx greylisting, policy refusal, or a ReadResponse error code we
		// cannot interpret: many servers refuse to confirm mailboxes.
		return model.StatusUnverified
	}
}
