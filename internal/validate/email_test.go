package validate

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulead/leadgen-cli/internal/model"
)

type fakeResolver struct {
	records []*net.MX
	err     error
	calls   int
}

func (r *fakeResolver) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	r.calls++
	return r.records, r.err
}

// scriptedSMTP serves a canned SMTP conversation over one half of a
// net.Pipe. rcptReply is the line sent in response to RCPT TO.
func scriptedSMTP(t *testing.T, rcptReply string) dialFunc {
	t.Helper()
	return func(_ context.Context, _ string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			w := bufio.NewWriter(server)
			r := bufio.NewReader(server)

			write := func(line string) {
				w.WriteString(line + "\r\n")
				w.Flush()
			}
			write("220 mail.example.sch.id ESMTP")
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				switch {
				case strings.HasPrefix(line, "HELO"), strings.HasPrefix(line, "MAIL FROM"):
					write("250 OK")
				case strings.HasPrefix(line, "RCPT TO"):
					write(rcptReply)
				case strings.HasPrefix(line, "QUIT"):
					write("221 Bye")
					return
				default:
					write("502 Command not implemented")
				}
			}
		}()
		return client, nil
	}
}

func emailContact(addr string) model.NormalizedContact {
	return model.NormalizedContact{Channel: model.ChannelEmail, Value: addr}
}

func TestVerifyDeliverable(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}),
		WithDialer(scriptedSMTP(t, "250 Accepted")),
	)

	status := v.Verify(context.Background(), emailContact("kepsek@example.sch.id"))
	assert.Equal(t, model.StatusValid, status)
}

func TestVerifyMailboxRejected(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}),
		WithDialer(scriptedSMTP(t, "550 No such user")),
	)

	status := v.Verify(context.Background(), emailContact("nobody@example.sch.id"))
	assert.Equal(t, model.StatusUndeliverable, status)
}

func TestVerifyGreylistedStaysUnverified(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}),
		WithDialer(scriptedSMTP(t, "451 Greylisted, try again later")),
	)

	status := v.Verify(context.Background(), emailContact("tu@example.sch.id"))
	assert.Equal(t, model.StatusUnverified, status)
}

func TestVerifyNoMXRecords(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: nil}),
		WithDialer(func(context.Context, string) (net.Conn, error) {
			t.Fatal("dial must not be reached without MX records")
			return nil, nil
		}),
	)

	status := v.Verify(context.Background(), emailContact("admin@nomail.example.id"))
	assert.Equal(t, model.StatusInvalid, status)
}

func TestVerifyDomainNotFound(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{err: &net.DNSError{Err: "no such host", IsNotFound: true}}),
	)

	status := v.Verify(context.Background(), emailContact("x@doesnotexist.example"))
	assert.Equal(t, model.StatusInvalid, status)
}

func TestVerifyDomainNotFoundWrapped(t *testing.T) {
	wrapped := fmt.Errorf("lookup mx: %w", &net.DNSError{Err: "no such host", IsNotFound: true})
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{err: wrapped}),
	)

	status := v.Verify(context.Background(), emailContact("x@gone.example"))
	assert.Equal(t, model.StatusInvalid, status)
}

func TestVerifyResolverTimeoutStaysUnverified(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}}),
	)

	status := v.Verify(context.Background(), emailContact("x@slow.example.id"))
	assert.Equal(t, model.StatusUnverified, status)
}

func TestVerifyDialFailureStaysUnverified(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}),
		WithDialer(func(context.Context, string) (net.Conn, error) {
			return nil, assert.AnError
		}),
		WithStageTimeout(100*time.Millisecond),
	)

	status := v.Verify(context.Background(), emailContact("guru@example.sch.id"))
	assert.Equal(t, model.StatusUnverified, status)
}

func TestVerifyBadSyntaxSkipsNetwork(t *testing.T) {
	resolver := &fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}
	v := NewEmailVerifier(WithResolver(resolver))

	status := v.Verify(context.Background(), emailContact("not-an-email"))
	assert.Equal(t, model.StatusInvalid, status)
	assert.Zero(t, resolver.calls)
}

func TestVerifyWrongChannel(t *testing.T) {
	v := NewEmailVerifier()
	status := v.Verify(context.Background(), model.NormalizedContact{
		Channel: model.ChannelPhone,
		Value:   "+6281234567890",
	})
	assert.Equal(t, model.StatusInvalid, status)
}

func TestVerifyCachesResults(t *testing.T) {
	resolver := &fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}
	v := NewEmailVerifier(
		WithResolver(resolver),
		WithDialer(scriptedSMTP(t, "250 Accepted")),
	)

	contact := emailContact("kepsek@example.sch.id")
	first := v.Verify(context.Background(), contact)
	second := v.Verify(context.Background(), contact)

	require.Equal(t, first, second)
	assert.Equal(t, 1, resolver.calls)
}

func TestVerifySkipSMTP(t *testing.T) {
	v := NewEmailVerifier(
		WithResolver(&fakeResolver{records: []*net.MX{{Host: "mail.example.sch.id.", Pref: 10}}}),
		WithSkipSMTP(true),
		WithDialer(func(context.Context, string) (net.Conn, error) {
			t.Fatal("dialer must not be called when SMTP is skipped")
			return nil, nil
		}),
	)

	status := v.Verify(context.Background(), emailContact("kepsek@example.sch.id"))
	assert.Equal(t, model.StatusUnverified, status)
}
