package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/identity/memory"
)

type outbox struct {
	sent []memory.Notification
}

func (o *outbox) notify(_ context.Context, n memory.Notification) {
	o.sent = append(o.sent, n)
}

func (o *outbox) last(t *testing.T, kind string) memory.Notification {
	t.Helper()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return memory.Notification{}
}

func newBackend(opts ...memory.Option) (*memory.Backend, *outbox) {
	box := &outbox{}
	opts = append([]memory.Option{memory.WithHashCost(bcrypt.MinCost), memory.WithNotifier(box.notify)}, opts...)
	return memory.New(opts...), box
}

func register(t *testing.T, b *memory.Backend) identity.Account {
	t.Helper()
	account, err := b.Register(context.Background(), identity.Registration{
		Username: "ada",
		Email:    "Ada@Example.com",
		Password: "analytical",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return account
}

func TestRegisterAndAuthenticate(t *testing.T) {
	b, box := newBackend()
	account := register(t, b)
	if account.ID == "" || account.Verified {
		t.Fatalf("unexpected account %+v", account)
	}
	if box.last(t, memory.KindVerification).Email != "Ada@Example.com" {
		t.Fatalf("verification sent to wrong address: %+v", box.sent)
	}

	for _, login := range []string{"ada@example.com", "ADA"} {
		got, err := b.Authenticate(context.Background(), login, "analytical")
		if err != nil {
			t.Fatalf("authenticate %s: %v", login, err)
		}
		if got.ID != account.ID || got.SessionToken == "" {
			t.Fatalf("unexpected account %+v", got)
		}
	}

	_, err := b.Authenticate(context.Background(), "ada", "wrong")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = b.Authenticate(context.Background(), "nobody", "analytical")
	if identity.Code(err) != identity.CodeInvalidCredentials {
		t.Fatalf("unknown login should look like a bad password, got %v", err)
	}
}

func TestRegister_Duplicates(t *testing.T) {
	b, _ := newBackend()
	register(t, b)

	_, err := b.Register(context.Background(), identity.Registration{Email: "ada@example.com", Password: "x"})
	if !errors.Is(err, identity.ErrAccountExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
	_, err = b.Register(context.Background(), identity.Registration{Username: "Ada", Email: "other@example.com", Password: "x"})
	if !errors.Is(err, identity.ErrUsernameTaken) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
}

func TestRegister_LoginNamespaceIsShared(t *testing.T) {
	b, _ := newBackend()
	register(t, b)

	cases := map[string]struct {
		reg  identity.Registration
		want error
	}{
		"username is an existing email": {
			reg:  identity.Registration{Username: "ada@example.com", Email: "other@example.com", Password: "x"},
			want: identity.ErrUsernameTaken,
		},
		"email is an existing username": {
			reg:  identity.Registration{Email: "ADA", Password: "x"},
			want: identity.ErrAccountExists,
		},
	}
	for name, tc := range cases {
		if _, err := b.Register(context.Background(), tc.reg); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", name, err, tc.want)
		}
	}

	if _, err := b.Authenticate(context.Background(), "ada", "analytical"); err != nil {
		t.Fatalf("original account lost its login: %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	b, box := newBackend()
	register(t, b)

	if err := b.SendPasswordReset(context.Background(), "nobody@example.com"); !errors.Is(err, identity.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if err := b.SendPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	token := box.last(t, memory.KindPasswordReset).Token

	if err := b.ChangePassword(context.Background(), "bogus", "new"); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if err := b.ChangePassword(context.Background(), token, "engine"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := b.Authenticate(context.Background(), "ada", "engine"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if err := b.ChangePassword(context.Background(), token, "again"); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("token should be single use, got %v", err)
	}
	if account, _ := b.Account("ada"); !account.Verified {
		t.Fatalf("reset should verify the address")
	}
}

func TestPasswordReset_Expires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b, box := newBackend(memory.WithClock(func() time.Time { return now }), memory.WithTokenTTL(time.Minute))
	register(t, b)

	if err := b.SendPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("send reset: %v", err)
	}
	token := box.last(t, memory.KindPasswordReset).Token
	now = now.Add(time.Minute)

	if err := b.ChangePassword(context.Background(), token, "late"); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	b, box := newBackend()
	register(t, b)
	first := box.last(t, memory.KindVerification).Token

	if err := b.ResendVerification(context.Background(), "ghost"); !errors.Is(err, identity.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if err := b.ResendVerification(context.Background(), "ada"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := box.last(t, memory.KindVerification).Token
	if second == first {
		t.Fatalf("expected a fresh token")
	}
	if _, err := b.Verify(context.Background(), first); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("superseded token should fail, got %v", err)
	}
	account, err := b.Verify(context.Background(), second)
	if err != nil || !account.Verified {
		t.Fatalf("verify: %+v %v", account, err)
	}

	sent := len(box.sent)
	if err := b.ResendVerification(context.Background(), "ada"); err != nil {
		t.Fatalf("resend verified: %v", err)
	}
	if len(box.sent) != sent {
		t.Fatalf("verified accounts should not receive new tokens")
	}
}

func TestCanceledContext(t *testing.T) {
	b, _ := newBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Authenticate(ctx, "ada", "x")
	if !errors.Is(err, identity.ErrBackendUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected unavailable wrapping context.Canceled, got %v", err)
	}
}
