package command

import (
	"context"
	"reflect"
	"strconv"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/capability"
	"github.com/parlancehq/parlance/pkg/errors"
)

var testUser = auth.User{ID: "u-1", Name: "Pat", Roles: []string{"staff"}}

func productSchema() action.Schema {
	return action.NewSchema([]action.Field{
		action.StringField("name", "product name"),
		action.FloatField("price", "unit price"),
		action.EnumField("currency", "price currency", "USD", "EUR").WithDefault("USD"),
	}, "name", "price")
}

// recordingHandler counts invocations and captures the validated payload.
type recordingHandler struct {
	calls    int
	payload  action.Payload
	result   *action.Result
	err      error
	panicMsg string
	emit     []action.Step
}

func (h *recordingHandler) fn() action.HandlerFunc {
	return func(ctx context.Context, payload action.Payload, sink action.Sink) (*action.Result, error) {
		h.calls++
		h.payload = payload
		if h.panicMsg != "" {
			panic(h.panicMsg)
		}
		for _, s := range h.emit {
			sink.Emit(s)
		}
		if h.err != nil {
			return nil, h.err
		}
		if h.result != nil {
			return h.result, nil
		}
		return action.Success("done"), nil
	}
}

type recordingAudit struct {
	execs []*Execution
	err   error
}

func (r *recordingAudit) Record(ctx context.Context, exec *Execution) error {
	r.execs = append(r.execs, exec)
	return r.err
}

type allowAll struct{}

func (allowAll) Allowed(ctx context.Context, user auth.User, permission string) (bool, error) {
	return true, nil
}

func newEngine(t *testing.T, cfg Config, actions ...action.Action) *Processor {
	t.Helper()
	if cfg.Capabilities == nil {
		reg := capability.NewRegistry(action.NewRegistry(), nil)
		if err := reg.Register(capability.Static("test", actions...)); err != nil {
			t.Fatal(err)
		}
		cfg.Capabilities = reg
	}
	p, err := NewProcessor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func productRule() Rule {
	return MustRule("shop.create_product",
		`(?i)^create product named (\S+) for \$([0-9.]+)$`,
		func(m []string) (action.Payload, error) {
			price, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				return nil, err
			}
			return action.Payload{"name": m[1], "price": price}, nil
		})
}

func TestProcessResolvesPatternRule(t *testing.T) {
	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name:        "shop.create_product",
		Description: "Create a product",
		Schema:      productSchema(),
		Handler:     h.fn(),
	})
	audit := &recordingAudit{}
	p := newEngine(t, Config{Rules: []Rule{productRule()}, Audit: audit}, act)

	result := p.Process(context.Background(), "create product named Foo for $10", testUser, nil)

	if result.Status != action.StatusSuccess {
		t.Fatalf("status = %s, want success (%s)", result.Status, result.Message)
	}
	if h.calls != 1 {
		t.Fatalf("handler calls = %d, want 1", h.calls)
	}
	want := action.Payload{"name": "Foo", "price": 10.0, "currency": "USD"}
	if !reflect.DeepEqual(h.payload, want) {
		t.Errorf("payload = %v, want %v", h.payload, want)
	}

	if len(audit.execs) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audit.execs))
	}
	intent := audit.execs[0].Intent
	if intent == nil || intent.Action != "shop.create_product" || intent.Source != SourcePattern {
		t.Errorf("intent = %+v", intent)
	}
}

func TestResolveIsDeterministicFirstRuleWins(t *testing.T) {
	first := action.MustNew(action.Definition{
		Name: "a.first", Description: "first", Handler: (&recordingHandler{}).fn(),
	})
	second := action.MustNew(action.Definition{
		Name: "a.second", Description: "second", Handler: (&recordingHandler{}).fn(),
	})
	rules := []Rule{
		MustRule("a.first", `(?i)^do it$`, nil),
		MustRule("a.second", `(?i)^do it$`, nil),
	}
	p := newEngine(t, Config{Rules: rules}, first, second)

	for i := 0; i < 5; i++ {
		intent, _, err := p.Resolve(context.Background(), "do it", testUser)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if intent.Action != "a.first" {
			t.Fatalf("iteration %d resolved %s, want a.first", i, intent.Action)
		}
	}
}

func TestRuleForInactiveActionFallsThrough(t *testing.T) {
	live := action.MustNew(action.Definition{
		Name: "b.live", Description: "live", Handler: (&recordingHandler{}).fn(),
	})
	dark := action.MustNew(action.Definition{
		Name: "b.dark", Description: "dark", Handler: (&recordingHandler{}).fn(),
	})

	actions := action.NewRegistry()
	caps := capability.NewRegistry(actions, nil)
	if err := caps.Register(capability.Static("live", live)); err != nil {
		t.Fatal(err)
	}
	if err := caps.Register(capability.New("dark", func() (bool, error) { return false, nil }, dark)); err != nil {
		t.Fatal(err)
	}

	rules := []Rule{
		MustRule("b.dark", `^go$`, nil),
		MustRule("b.live", `^go$`, nil),
	}
	p := newEngine(t, Config{Capabilities: caps, Rules: rules})

	intent, _, err := p.Resolve(context.Background(), "go", testUser)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if intent.Action != "b.live" {
		t.Errorf("resolved %s, want b.live (disabled capability must not match)", intent.Action)
	}
}

func TestProcessNoMatchFromParserStub(t *testing.T) {
	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name: "shop.create_product", Description: "create", Schema: productSchema(), Handler: h.fn(),
	})
	parser := ParserFunc(func(ctx context.Context, req ParseRequest) (*ParseResult, error) {
		return nil, ErrNoMatch
	})
	p := newEngine(t, Config{Parser: parser}, act)

	result := p.Process(context.Background(), "what is the weather", testUser, nil)

	if result.Status != action.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Message != "no action matched" {
		t.Errorf("message = %q, want %q", result.Message, "no action matched")
	}
	if h.calls != 0 {
		t.Errorf("handler calls = %d, want 0", h.calls)
	}
}

func TestProcessParserErrorDegradesToNoMatch(t *testing.T) {
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: (&recordingHandler{}).fn(),
	})
	parser := ParserFunc(func(ctx context.Context, req ParseRequest) (*ParseResult, error) {
		return nil, errors.New(errors.ErrCodeProviderError, "upstream 500")
	})
	p := newEngine(t, Config{Parser: parser}, act)

	result := p.Process(context.Background(), "gibberish", testUser, nil)
	if result.Status != action.StatusFailed || result.Message != "no action matched" {
		t.Errorf("result = %+v, want failed/no action matched", result)
	}
}

func TestProcessParserTimeoutDegradesToNoMatch(t *testing.T) {
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: (&recordingHandler{}).fn(),
	})
	parser := ParserFunc(func(ctx context.Context, req ParseRequest) (*ParseResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &ParseResult{Action: "x.op"}, nil
		}
	})
	p := newEngine(t, Config{Parser: parser, ParseTimeout: 20 * time.Millisecond}, act)

	result := p.Process(context.Background(), "slow please", testUser, nil)
	if result.Status != action.StatusFailed || result.Message != "no action matched" {
		t.Errorf("result = %+v, want failed/no action matched", result)
	}
}

func TestProcessParserResolvesAction(t *testing.T) {
	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name: "shop.create_product", Description: "create", Schema: productSchema(), Handler: h.fn(),
	})
	var gotReq ParseRequest
	parser := ParserFunc(func(ctx context.Context, req ParseRequest) (*ParseResult, error) {
		gotReq = req
		return &ParseResult{
			Action:  "shop.create_product",
			Payload: map[string]any{"name": "Gadget", "price": 19.5},
		}, nil
	})
	audit := &recordingAudit{}
	p := newEngine(t, Config{Parser: parser, Audit: audit}, act)

	result := p.Process(context.Background(), "add a gadget priced around twenty bucks", testUser, nil)

	if result.Status != action.StatusSuccess {
		t.Fatalf("status = %s (%s)", result.Status, result.Message)
	}
	if h.payload["name"] != "Gadget" || h.payload["price"] != 19.5 {
		t.Errorf("payload = %v", h.payload)
	}
	if len(gotReq.Actions) != 1 || gotReq.Actions[0].Name != "shop.create_product" {
		t.Errorf("parser candidates = %+v", gotReq.Actions)
	}
	if gotReq.Actions[0].Schema == nil {
		t.Error("candidate schema missing")
	}
	if audit.execs[0].Intent.Source != SourceAI {
		t.Errorf("intent source = %s, want ai", audit.execs[0].Intent.Source)
	}
}

func TestProcessParserUnknownActionIsNoMatch(t *testing.T) {
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: (&recordingHandler{}).fn(),
	})
	parser := ParserFunc(func(ctx context.Context, req ParseRequest) (*ParseResult, error) {
		return &ParseResult{Action: "never.registered"}, nil
	})
	p := newEngine(t, Config{Parser: parser}, act)

	result := p.Process(context.Background(), "do something", testUser, nil)
	if result.Status != action.StatusFailed || result.Message != "no action matched" {
		t.Errorf("result = %+v", result)
	}
}

func TestProcessValidationFailureSkipsHandler(t *testing.T) {
	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name: "shop.create_product", Description: "create", Schema: productSchema(), Handler: h.fn(),
	})
	rule := MustRule("shop.create_product", `^new product$`, nil) // extracts nothing
	p := newEngine(t, Config{Rules: []Rule{rule}}, act)

	result := p.Process(context.Background(), "new product", testUser, nil)

	if result.Status != action.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Message != `field "name" is required` {
		t.Errorf("message = %q, want field-level message", result.Message)
	}
	if h.calls != 0 {
		t.Errorf("handler calls = %d, want 0", h.calls)
	}
}

func TestProcessPermissionDeniedSkipsHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name:        "admin.wipe",
		Description: "dangerous",
		Permission:  "admin.manage",
		Handler:     h.fn(),
	})
	checker := NewMockPermissionChecker(ctrl)
	checker.EXPECT().
		Allowed(gomock.Any(), testUser, "admin.manage").
		Return(false, nil)

	rule := MustRule("admin.wipe", `^wipe$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}, Permissions: checker}, act)

	result := p.Process(context.Background(), "wipe", testUser, nil)

	if result.Status != action.StatusFailed || result.Message != "permission denied" {
		t.Fatalf("result = %+v", result)
	}
	if h.calls != 0 {
		t.Errorf("handler calls = %d, want 0", h.calls)
	}
}

func TestProcessPermissionCheckerErrorFailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := &recordingHandler{}
	act := action.MustNew(action.Definition{
		Name: "admin.wipe", Description: "dangerous", Permission: "admin.manage", Handler: h.fn(),
	})
	checker := NewMockPermissionChecker(ctrl)
	checker.EXPECT().
		Allowed(gomock.Any(), gomock.Any(), "admin.manage").
		Return(true, errors.New(errors.ErrCodeInternal, "idp unreachable"))

	rule := MustRule("admin.wipe", `^wipe$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}, Permissions: checker}, act)

	result := p.Process(context.Background(), "wipe", testUser, nil)
	if result.Status != action.StatusFailed || result.Message != "permission denied" {
		t.Fatalf("checker error must deny, got %+v", result)
	}
	if h.calls != 0 {
		t.Errorf("handler calls = %d, want 0", h.calls)
	}
}

func TestValidationRunsBeforePermissionCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	act := action.MustNew(action.Definition{
		Name: "shop.create_product", Description: "create", Schema: productSchema(),
		Permission: "shop.manage", Handler: (&recordingHandler{}).fn(),
	})
	// Checker must never be consulted when validation already failed.
	checker := NewMockPermissionChecker(ctrl)

	rule := MustRule("shop.create_product", `^new product$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}, Permissions: checker}, act)

	result := p.Process(context.Background(), "new product", testUser, nil)
	if result.Message != `field "name" is required` {
		t.Errorf("message = %q, want the validation message", result.Message)
	}
}

func TestProcessRelaysStepsInOrder(t *testing.T) {
	steps := []action.Step{
		{Label: "content", Status: action.StepInProgress},
		{Label: "content", Status: action.StepCompleted},
		{Label: "images", Status: action.StepInProgress},
		{Label: "images", Status: action.StepFailed},
	}
	h := &recordingHandler{emit: steps}
	act := action.MustNew(action.Definition{
		Name: "content.create_post", Description: "post", Handler: h.fn(),
	})
	rule := MustRule("content.create_post", `^post$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}}, act)

	sink := &action.BufferSink{}
	p.Process(context.Background(), "post", testUser, sink)

	got := sink.Steps()
	if !reflect.DeepEqual(got, steps) {
		t.Errorf("relayed steps = %v, want %v", got, steps)
	}
	// Per-phase ordering: in_progress before terminal for each label.
	seen := map[string]action.StepStatus{}
	for _, s := range got {
		if prev, ok := seen[s.Label]; ok && prev != action.StepInProgress && s.Status == action.StepInProgress {
			t.Errorf("phase %q: in_progress after terminal status", s.Label)
		}
		seen[s.Label] = s.Status
	}
}

func TestProcessStampsCompletedSteps(t *testing.T) {
	h := &recordingHandler{emit: []action.Step{
		{Label: "content", Status: action.StepInProgress},
		{Label: "content", Status: action.StepCompleted},
		{Label: "images", Status: action.StepInProgress},
		{Label: "images", Status: action.StepFailed},
	}}
	act := action.MustNew(action.Definition{
		Name: "content.create_post", Description: "post", Handler: h.fn(),
	})
	rule := MustRule("content.create_post", `^post$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}}, act)

	result := p.Process(context.Background(), "post", testUser, nil)

	want := []string{"content: completed", "images: failed"}
	if !reflect.DeepEqual(result.CompletedSteps, want) {
		t.Errorf("CompletedSteps = %v, want %v", result.CompletedSteps, want)
	}
}

func TestProcessPartialResultPassesThrough(t *testing.T) {
	partial := action.Partial("post created, image generation failed").
		WithData("post_id", "p-42")
	h := &recordingHandler{result: partial}
	act := action.MustNew(action.Definition{
		Name: "content.create_post", Description: "post", Handler: h.fn(),
	})
	rule := MustRule("content.create_post", `^post$`, nil)
	p := newEngine(t, Config{Rules: []Rule{rule}}, act)

	result := p.Process(context.Background(), "post", testUser, nil)

	if result.Status != action.StatusPartial {
		t.Fatalf("status = %s, want partial", result.Status)
	}
	if result.Data["post_id"] != "p-42" {
		t.Errorf("primary artifact missing from data: %v", result.Data)
	}
}

func TestProcessHandlerErrorSanitized(t *testing.T) {
	h := &recordingHandler{err: errors.New(errors.ErrCodeStorageWrite, "insert failed: disk full at /var/db")}
	act := action.MustNew(action.Definition{
		Name: "shop.create_product", Description: "create", Schema: productSchema(), Handler: h.fn(),
	})
	rule := productRule()
	p := newEngine(t, Config{Rules: []Rule{rule}}, act)

	result := p.Process(context.Background(), "create product named Foo for $10", testUser, nil)

	if result.Status != action.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Message != "shop.create_product failed" {
		t.Errorf("message = %q, want sanitized", result.Message)
	}
}

func TestProcessHandlerPanicContained(t *testing.T) {
	h := &recordingHandler{panicMsg: "nil map write"}
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: h.fn(),
	})
	rule := MustRule("x.op", `^op$`, nil)
	audit := &recordingAudit{}
	p := newEngine(t, Config{Rules: []Rule{rule}, Audit: audit}, act)

	result := p.Process(context.Background(), "op", testUser, nil)

	if result.Status != action.StatusFailed || result.Message != "x.op failed" {
		t.Fatalf("result = %+v", result)
	}
	// The command still finalizes: audit gets the transcript.
	if len(audit.execs) != 1 {
		t.Errorf("audit records = %d, want 1", len(audit.execs))
	}
}

func TestProcessAuditFailureDoesNotChangeResult(t *testing.T) {
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: (&recordingHandler{}).fn(),
	})
	rule := MustRule("x.op", `^op$`, nil)
	audit := &recordingAudit{err: errors.New(errors.ErrCodeStorageWrite, "db locked")}
	p := newEngine(t, Config{Rules: []Rule{rule}, Audit: audit}, act)

	result := p.Process(context.Background(), "op", testUser, nil)
	if result.Status != action.StatusSuccess {
		t.Errorf("status = %s, audit failure must not alter the result", result.Status)
	}
}

func TestProcessPublishesLifecycleEvents(t *testing.T) {
	h := &recordingHandler{emit: []action.Step{
		{Label: "content", Status: action.StepInProgress},
		{Label: "content", Status: action.StepCompleted},
	}}
	act := action.MustNew(action.Definition{
		Name: "content.create_post", Description: "post", Handler: h.fn(),
	})
	rule := MustRule("content.create_post", `^post$`, nil)

	var subjects []string
	bus := publisherFunc(func(ctx context.Context, subject string, data []byte) error {
		subjects = append(subjects, subject)
		return nil
	})
	p := newEngine(t, Config{Rules: []Rule{rule}, Bus: bus}, act)

	p.Process(context.Background(), "post", testUser, nil)

	want := []string{SubjectStarted, SubjectStep, SubjectStep, SubjectCompleted}
	if !reflect.DeepEqual(subjects, want) {
		t.Errorf("published subjects = %v, want %v", subjects, want)
	}
}

type publisherFunc func(ctx context.Context, subject string, data []byte) error

func (f publisherFunc) Publish(ctx context.Context, subject string, data []byte) error {
	return f(ctx, subject, data)
}

func TestResolveEmptyCommandNoMatch(t *testing.T) {
	act := action.MustNew(action.Definition{
		Name: "x.op", Description: "op", Handler: (&recordingHandler{}).fn(),
	})
	p := newEngine(t, Config{}, act)

	if _, _, err := p.Resolve(context.Background(), "   ", testUser); err != ErrNoMatch {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestCandidatesRespectVisibility(t *testing.T) {
	public := action.MustNew(action.Definition{
		Name: "pub.op", Description: "public", Handler: (&recordingHandler{}).fn(),
	})
	staffOnly := action.MustNew(action.Definition{
		Name: "staff.op", Description: "staff only", Handler: (&recordingHandler{}).fn(),
		VisibleTo: func(u auth.User) bool { return u.HasRole("staff") },
	})
	p := newEngine(t, Config{}, public, staffOnly)

	anon := p.Candidates(auth.User{})
	if len(anon) != 1 || anon[0].Name() != "pub.op" {
		t.Errorf("anonymous candidates = %v", anon)
	}
	staff := p.Candidates(testUser)
	if len(staff) != 2 {
		t.Errorf("staff candidates = %d, want 2", len(staff))
	}
}
