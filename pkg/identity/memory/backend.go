// Package memory provides an in-process identity backend for development and
// tests. Passwords are stored as bcrypt hashes; reset and verification
// tokens are stored as SHA-256 digests and handed to a Notifier in clear.
package memory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/xid/wuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-authforms/pkg/identity"
)

// Notification kinds.
const (
	KindPasswordReset = identity.KindPasswordReset
	KindVerification  = identity.KindVerification
)

const tokenBytes = 32

type (
	// Notification is what a real deployment would email.
	Notification = identity.Notification
	// Notifier receives outgoing notifications.
	Notifier = identity.Notifier
)

type record struct {
	account identity.Account
	hash    []byte
}

type pendingToken struct {
	accountID string
	kind      string
	expires   time.Time
}

// Backend stores accounts in memory.
type Backend struct {
	mu       sync.Mutex
	accounts map[string]*record
	byEmail  map[string]string
	byName   map[string]string
	tokens   map[string]pendingToken

	notify   Notifier
	now      func() time.Time
	tokenTTL time.Duration
	cost     int
}

var _ identity.Backend = (*Backend)(nil)

// Option customises the backend.
type Option func(*Backend)

// WithNotifier registers the receiver of reset and verification tokens.
func WithNotifier(n Notifier) Option {
	return func(b *Backend) {
		b.notify = n
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithTokenTTL sets how long reset and verification tokens stay valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		if ttl > 0 {
			b.tokenTTL = ttl
		}
	}
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(b *Backend) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			b.cost = cost
		}
	}
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		accounts: make(map[string]*record),
		byEmail:  make(map[string]string),
		byName:   make(map[string]string),
		tokens:   make(map[string]pendingToken),
		now:      time.Now,
		tokenTTL: time.Hour,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Register stores a new unverified account and issues a verification token.
func (b *Backend) Register(ctx context.Context, reg identity.Registration) (identity.Account, error) {
	const op = "register"
	if err := ctx.Err(); err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), b.cost)
	if err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	email := normalize(reg.Email)
	username := normalize(reg.Username)

	b.mu.Lock()
	// Emails and usernames share one login namespace.
	if b.loginTakenLocked(email) {
		b.mu.Unlock()
		return identity.Account{}, identity.Wrap(identity.ErrAccountExists, op, nil)
	}
	if username != "" && b.loginTakenLocked(username) {
		b.mu.Unlock()
		return identity.Account{}, identity.Wrap(identity.ErrUsernameTaken, op, nil)
	}

	account := identity.Account{
		ID:         wuid.New().String(),
		Username:   strings.TrimSpace(reg.Username),
		Email:      strings.TrimSpace(reg.Email),
		GivenName:  reg.GivenName,
		MiddleName: reg.MiddleName,
		Surname:    reg.Surname,
		CreatedAt:  b.now(),
	}
	b.accounts[account.ID] = &record{account: account, hash: hash}
	b.byEmail[email] = account.ID
	if username != "" {
		b.byName[username] = account.ID
	}
	token, err := b.issueLocked(account.ID, KindVerification)
	b.mu.Unlock()
	if err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.send(ctx, Notification{Kind: KindVerification, Email: account.Email, Token: token})
	return account, nil
}

// Authenticate checks login, an email or username, against the stored hash.
// Unknown accounts and wrong passwords are indistinguishable.
func (b *Backend) Authenticate(ctx context.Context, login, password string) (identity.Account, error) {
	const op = "authenticate"
	if err := ctx.Err(); err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.mu.Lock()
	rec, ok := b.lookupLocked(login)
	var (
		account identity.Account
		hash    []byte
	)
	if ok {
		account, hash = rec.account, rec.hash
	}
	b.mu.Unlock()

	if !ok {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidCredentials, op, nil)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidCredentials, op, nil)
	}
	token, err := randomToken()
	if err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}
	account.SessionToken = token
	return account, nil
}

// SendPasswordReset issues a reset token for the account registered with
// email.
func (b *Backend) SendPasswordReset(ctx context.Context, email string) error {
	const op = "send_password_reset"
	if err := ctx.Err(); err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.mu.Lock()
	id, ok := b.byEmail[normalize(email)]
	if !ok {
		b.mu.Unlock()
		return identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}
	address := b.accounts[id].account.Email
	token, err := b.issueLocked(id, KindPasswordReset)
	b.mu.Unlock()
	if err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.send(ctx, Notification{Kind: KindPasswordReset, Email: address, Token: token})
	return nil
}

// ChangePassword consumes a reset token and replaces the password.
func (b *Backend) ChangePassword(ctx context.Context, token, password string) error {
	const op = "change_password"
	if err := ctx.Err(); err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pending, err := b.consumeLocked(token, KindPasswordReset)
	if err != nil {
		return identity.Wrap(identity.ErrInvalidToken, op, err)
	}
	rec, ok := b.accounts[pending.accountID]
	if !ok {
		return identity.Wrap(identity.ErrInvalidToken, op, nil)
	}
	rec.hash = hash
	// Following a reset link proves ownership of the address.
	rec.account.Verified = true
	return nil
}

// ResendVerification issues a fresh verification token. Verified accounts
// are left alone.
func (b *Backend) ResendVerification(ctx context.Context, login string) error {
	const op = "resend_verification"
	if err := ctx.Err(); err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.mu.Lock()
	rec, ok := b.lookupLocked(login)
	if !ok {
		b.mu.Unlock()
		return identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}
	if rec.account.Verified {
		b.mu.Unlock()
		return nil
	}
	address := rec.account.Email
	token, err := b.issueLocked(rec.account.ID, KindVerification)
	b.mu.Unlock()
	if err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.send(ctx, Notification{Kind: KindVerification, Email: address, Token: token})
	return nil
}

// Verify consumes a verification token.
func (b *Backend) Verify(ctx context.Context, token string) (identity.Account, error) {
	const op = "verify"
	if err := ctx.Err(); err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pending, err := b.consumeLocked(token, KindVerification)
	if err != nil {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidToken, op, err)
	}
	rec, ok := b.accounts[pending.accountID]
	if !ok {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidToken, op, nil)
	}
	rec.account.Verified = true
	return rec.account, nil
}

// Account returns the stored account for login.
func (b *Backend) Account(login string) (identity.Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.lookupLocked(login)
	if !ok {
		return identity.Account{}, false
	}
	return rec.account, true
}

func (b *Backend) loginTakenLocked(key string) bool {
	_, byEmail := b.byEmail[key]
	_, byName := b.byName[key]
	return byEmail || byName
}

func (b *Backend) lookupLocked(login string) (*record, bool) {
	key := normalize(login)
	if key == "" {
		return nil, false
	}
	id, ok := b.byEmail[key]
	if !ok {
		id, ok = b.byName[key]
	}
	if !ok {
		return nil, false
	}
	rec, ok := b.accounts[id]
	return rec, ok
}

// issueLocked replaces any outstanding token of the same kind for the
// account.
func (b *Backend) issueLocked(accountID, kind string) (string, error) {
	for key, pending := range b.tokens {
		if pending.accountID == accountID && pending.kind == kind {
			delete(b.tokens, key)
		}
	}
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	b.tokens[digest(token)] = pendingToken{
		accountID: accountID,
		kind:      kind,
		expires:   b.now().Add(b.tokenTTL),
	}
	return token, nil
}

func (b *Backend) consumeLocked(token, kind string) (pendingToken, error) {
	key := digest(strings.TrimSpace(token))
	pending, ok := b.tokens[key]
	if !ok || pending.kind != kind {
		return pendingToken{}, identity.ErrInvalidToken
	}
	delete(b.tokens, key)
	if !b.now().Before(pending.expires) {
		return pendingToken{}, identity.ErrInvalidToken
	}
	return pending, nil
}

func (b *Backend) send(ctx context.Context, n Notification) {
	if b.notify != nil {
		b.notify(ctx, n)
	}
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
