package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"coverletterai/internal/idtoken"
	"coverletterai/pkg/domain"
	"coverletterai/pkg/drafts"
	"coverletterai/pkg/store"
)

type fakeVerifier struct {
	identities map[string]idtoken.Identity
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (idtoken.Identity, error) {
	id, ok := f.identities[token]
	if !ok {
		return idtoken.Identity{}, fmt.Errorf("%w: unknown test token", idtoken.ErrTokenInvalid)
	}
	return id, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	text    string
	err     error
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	return f.text, f.err
}

type fakeExtractor struct {
	calls int
	text  string
	err   error
}

func (f *fakeExtractor) ExtractPDF(_ context.Context, r io.Reader) (string, error) {
	f.calls++
	_, _ = io.Copy(io.Discard, r)
	return f.text, f.err
}

type fixture struct {
	app       *App
	users     *store.MemoryStore
	generator *fakeGenerator
	extractor *fakeExtractor
	redis     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		users:     store.NewMemoryStore(),
		generator: &fakeGenerator{text: "Dear Acme,\nI am writing..."},
		extractor: &fakeExtractor{text: "Jane Doe\nGo engineer"},
		redis:     mr,
	}
	a, err := New(context.Background(), Config{
		SessionSecret: "0123456789abcdef-test",
		Redis:         client,
		Users:         f.users,
		Verifier: &fakeVerifier{identities: map[string]idtoken.Identity{
			"tok-jane": {Subject: "uid-jane", Email: "jane@example.com", EmailVerified: true, Name: "Jane"},
			"tok-bob":  {Subject: "uid-bob", Email: "bob@example.com"},
		}},
		Generator: f.generator,
		Extractor: f.extractor,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f.app = a
	return f
}

func TestSignUpCreatesDistinctUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jane, err := f.app.SignUp(ctx, "jane@example.com", "tok-jane")
	if err != nil {
		t.Fatalf("signup jane: %v", err)
	}
	bob, err := f.app.SignUp(ctx, "bob@example.com", "tok-bob")
	if err != nil {
		t.Fatalf("signup bob: %v", err)
	}
	if jane.ID == bob.ID || jane.Token == bob.Token {
		t.Fatalf("users must have distinct id and token")
	}
	if !jane.Verified || jane.GoogleID != "uid-jane" || jane.Name != "Jane" {
		t.Fatalf("identity attributes not stored: %+v", jane)
	}
}

func TestSignUpDuplicateReturnsExistingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.app.SignUp(ctx, "jane@example.com", "tok-jane")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	again, err := f.app.SignUp(ctx, "Jane@Example.com", "tok-jane")
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if again.ID != first.ID || again.Token != first.Token {
		t.Fatalf("duplicate signup must return the existing id and token")
	}
	if f.users.Len() != 1 {
		t.Fatalf("expected exactly one user, got %d", f.users.Len())
	}
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		email   string
		idToken string
		want    error
	}{
		{name: "missing email", idToken: "tok-jane", want: ErrEmailAndIDTokenRequired},
		{name: "missing token", email: "jane@example.com", want: ErrEmailAndIDTokenRequired},
		{name: "invalid token", email: "jane@example.com", idToken: "forged", want: ErrInvalidIDToken},
		{name: "email mismatch", email: "mallory@example.com", idToken: "tok-jane", want: ErrEmailMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.app.SignUp(ctx, tc.email, tc.idToken); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if f.users.Len() != 0 {
		t.Fatalf("no user may be created on failure, got %d", f.users.Len())
	}
}

func TestExchangeToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.ExchangeToken(ctx, ""); !errors.Is(err, ErrIDTokenRequired) {
		t.Fatalf("blank: %v", err)
	}
	if _, err := f.app.ExchangeToken(ctx, "tok-jane"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unregistered: %v", err)
	}
	if _, err := f.app.ExchangeToken(ctx, "forged"); !errors.Is(err, ErrInvalidIDToken) {
		t.Fatalf("forged: %v", err)
	}
	if f.users.Len() != 0 {
		t.Fatalf("token exchange must not create users")
	}

	jane, err := f.app.SignUp(ctx, "jane@example.com", "tok-jane")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	got, err := f.app.ExchangeToken(ctx, "tok-jane")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got.Token != jane.Token {
		t.Fatalf("token = %q, want %q", got.Token, jane.Token)
	}
}

func TestUserForTokenAndUserData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane, err := f.app.SignUp(ctx, "jane@example.com", "tok-jane")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := f.app.UserForToken(ctx, " "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("blank token: %v", err)
	}
	if _, err := f.app.UserForToken(ctx, "nope"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("unknown token: %v", err)
	}
	caller, err := f.app.UserForToken(ctx, jane.Token)
	if err != nil || caller.ID != jane.ID {
		t.Fatalf("resolve: %+v %v", caller, err)
	}
	if _, err := f.app.UserData(caller, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other id: %v", err)
	}
	if got, err := f.app.UserData(caller, jane.ID); err != nil || got.Token != jane.Token {
		t.Fatalf("own id: %+v %v", got, err)
	}
}

func TestSaveDraftFieldWritesKeyWithTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.SaveDraftField(ctx, "s1", domain.FieldCompany, "Acme"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := f.redis.Get("s1_company"); got != "Acme" {
		t.Fatalf("stored value = %q", got)
	}
	if ttl := f.redis.TTL("s1_company"); ttl <= 0 || ttl > drafts.DefaultTTL {
		t.Fatalf("ttl = %v", ttl)
	}
	if err := f.app.SaveDraftField(ctx, "", domain.FieldCompany, "Acme"); !errors.Is(err, ErrDraftValueRequired) {
		t.Fatalf("missing session: %v", err)
	}
	if err := f.app.SaveDraftField(ctx, "s1", domain.FieldCompany, ""); !errors.Is(err, ErrDraftValueRequired) {
		t.Fatalf("missing value: %v", err)
	}
}

func TestGenerateLetterExpiredFieldsAreOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.SaveDraftField(ctx, "s1", domain.FieldResume, "RESUME-TEXT"); err != nil {
		t.Fatalf("save resume: %v", err)
	}
	f.redis.FastForward(drafts.DefaultTTL + time.Second)
	if err := f.app.SaveDraftField(ctx, "s1", domain.FieldCompany, "Acme"); err != nil {
		t.Fatalf("save company: %v", err)
	}

	letter, err := f.app.GenerateLetter(ctx, "s1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if letter != f.generator.text {
		t.Fatalf("letter must be returned verbatim, got %q", letter)
	}
	prompt := f.generator.prompts[0]
	if strings.Contains(prompt, "RESUME-TEXT") || strings.Contains(prompt, "Candidate resume") {
		t.Fatalf("expired resume leaked into prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Acme") {
		t.Fatalf("company missing from prompt: %q", prompt)
	}
}

func TestGenerateLetterEmptyDraftStillCallsGenerator(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app.GenerateLetter(context.Background(), "fresh-session"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if f.generator.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", f.generator.calls)
	}
}

func TestGenerateLetterFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.GenerateLetter(ctx, ""); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("missing session: %v", err)
	}
	if f.generator.calls != 0 {
		t.Fatalf("generator must not be called without a session id")
	}

	f.generator.err = errors.New("upstream 503: secret detail")
	_, err := f.app.GenerateLetter(ctx, "s1")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if strings.Contains(err.Error(), "secret detail") {
		t.Fatalf("upstream cause leaked: %v", err)
	}

	f.generator.err = nil
	f.generator.text = "   "
	if _, err := f.app.GenerateLetter(ctx, "s1"); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("blank output: %v", err)
	}
}

func TestUploadResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.UploadResume(ctx, "s1", "resume.docx", strings.NewReader("x")); !errors.Is(err, ErrInvalidFileFormat) {
		t.Fatalf("docx: %v", err)
	}
	if err := f.app.UploadResume(ctx, "s1", "", strings.NewReader("x")); !errors.Is(err, ErrNoSelectedFile) {
		t.Fatalf("no name: %v", err)
	}
	if f.extractor.calls != 0 {
		t.Fatalf("extraction must not run for rejected uploads")
	}

	if err := f.app.UploadResume(ctx, "s1", "CV.PDF", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got, _ := f.redis.Get("s1_resume"); got != f.extractor.text {
		t.Fatalf("stored resume = %q", got)
	}

	f.extractor.err = errors.New("corrupt xref")
	if err := f.app.UploadResume(ctx, "s1", "cv.pdf", strings.NewReader("%PDF")); !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("extraction failure: %v", err)
	}
}

func TestSaveJobDescriptionHTML(t *testing.T) {
	f := newFixture(t)
	err := f.app.SaveJobDescriptionHTML(context.Background(), "s1", "<p>Build <b>things</b></p><script>x()</script>")
	if err != nil {
		t.Fatalf("save html: %v", err)
	}
	got, _ := f.redis.Get("s1_job_description")
	if got != "Build things" {
		t.Fatalf("stored = %q", got)
	}
}

func TestBuildPromptIncludesOnlyPresentFields(t *testing.T) {
	prompt, err := BuildPrompt(domain.Draft{domain.FieldJobRole: "Backend Engineer"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(prompt, "Role applied for:\nBackend Engineer") {
		t.Fatalf("role missing: %q", prompt)
	}
	for _, absent := range []string{"Company:", "Job description:", "Candidate resume:", "professional story:"} {
		if strings.Contains(prompt, absent) {
			t.Fatalf("unexpected section %q in %q", absent, prompt)
		}
	}
}

func TestSessionCodecRoundTripAndTamper(t *testing.T) {
	codec, err := NewSessionCodec([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	id := NewSessionID()
	value, err := codec.Encode(id)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got, err := codec.Decode(value); err != nil || got != id {
		t.Fatalf("decode: got=%q err=%v", got, err)
	}

	other, _ := NewSessionCodec([]byte("fedcba9876543210"))
	if _, err := other.Decode(value); err == nil {
		t.Fatalf("cookie signed with another secret must be rejected")
	}
	if _, err := NewSessionCodec([]byte("short")); err == nil {
		t.Fatalf("short secret must be rejected")
	}
}

func TestNewReturnsConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "short session secret", cfg: Config{SessionSecret: "short"}},
		{name: "bad redis url", cfg: Config{SessionSecret: "0123456789abcdef0123", RedisURL: "://nope"}},
		{name: "missing database url after redis opened", cfg: Config{SessionSecret: "0123456789abcdef0123", RedisAddr: "127.0.0.1:1"}},
		{name: "unknown user store", cfg: Config{SessionSecret: "0123456789abcdef0123", RedisAddr: "127.0.0.1:1", UserStore: "sqlite"}},
		{name: "missing firebase project", cfg: Config{SessionSecret: "0123456789abcdef0123", RedisAddr: "127.0.0.1:1", UserStore: "memory"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := New(context.Background(), tc.cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if a != nil {
				t.Fatalf("app must be nil on error")
			}
		})
	}
}

func TestCloseOnNilApp(t *testing.T) {
	var a *App
	if err := a.Close(); err != nil {
		t.Fatalf("close nil app: %v", err)
	}
}
