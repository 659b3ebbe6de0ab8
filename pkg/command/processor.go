package command

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/capability"
	"github.com/parlancehq/parlance/pkg/contextinfo"
	"github.com/parlancehq/parlance/pkg/errors"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/metrics"
	"github.com/parlancehq/parlance/pkg/telemetry"
)

// Bus subjects for command lifecycle events.
const (
	SubjectStarted   = "parlance.command.started"
	SubjectStep      = "parlance.command.step"
	SubjectCompleted = "parlance.command.completed"
)

const defaultParseTimeout = 15 * time.Second

// PermissionChecker decides whether a user holds a named permission.
// An error counts as a denial (fail-closed).
//
//go:generate mockgen -package=command -destination=mock_permission_checker_test.go github.com/parlancehq/parlance/pkg/command PermissionChecker
type PermissionChecker interface {
	Allowed(ctx context.Context, user auth.User, permission string) (bool, error)
}

// Publisher is the slice of the message bus the processor uses for
// lifecycle events. Publishing is optional and never load-bearing.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Config carries the processor's collaborators. Capabilities is required;
// everything else degrades gracefully when absent (nil Parser disables the
// AI fallback, nil Audit records nothing, nil Bus publishes nothing).
type Config struct {
	Capabilities *capability.Registry
	Context      *contextinfo.Registry
	Rules        []Rule
	Parser       Parser
	Permissions  PermissionChecker
	Audit        AuditRecorder
	Logger       *logging.Logger
	Bus          Publisher
	ParseTimeout time.Duration
}

// Processor resolves free-text commands to actions and executes them.
// Stateless between invocations; safe for concurrent use once built.
type Processor struct {
	capabilities *capability.Registry
	contextInfo  *contextinfo.Registry
	rules        []Rule
	parser       Parser
	permissions  PermissionChecker
	audit        AuditRecorder
	logger       *logging.Logger
	bus          Publisher
	parseTimeout time.Duration
}

// NewProcessor builds a processor from explicit dependencies.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Capabilities == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "processor requires a capability registry")
	}
	audit := cfg.Audit
	if audit == nil {
		audit = NopRecorder{}
	}
	timeout := cfg.ParseTimeout
	if timeout <= 0 {
		timeout = defaultParseTimeout
	}
	return &Processor{
		capabilities: cfg.Capabilities,
		contextInfo:  cfg.Context,
		rules:        cfg.Rules,
		parser:       cfg.Parser,
		permissions:  cfg.Permissions,
		audit:        audit,
		logger:       cfg.Logger,
		bus:          cfg.Bus,
		parseTimeout: timeout,
	}, nil
}

// Configured reports whether the AI fallback stage is available.
func (p *Processor) Configured() bool { return p.parser != nil }

// Candidates returns the actions currently resolvable for the user:
// actions of enabled capabilities, minus those the user can never see.
func (p *Processor) Candidates(user auth.User) []action.Action {
	active := p.capabilities.ActiveActions()
	out := make([]action.Action, 0, len(active))
	for _, a := range active {
		if r, ok := a.(action.Restricted); ok && !r.VisibleTo(user) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Process runs the full resolution and dispatch pipeline for one command.
// It never returns an error: every internal failure becomes a terminal
// Result. Steps emitted by the handler are relayed synchronously to sink.
func (p *Processor) Process(ctx context.Context, raw string, user auth.User, sink action.Sink) *action.Result {
	if sink == nil {
		sink = action.NopSink{}
	}
	exec := &Execution{
		ID:        uuid.NewString(),
		Command:   raw,
		User:      user,
		StartedAt: time.Now(),
	}

	ctx, span := telemetry.StartSpan(ctx, "command.process")
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.AttrCommandID.String(exec.ID),
		telemetry.AttrUserID.String(user.ID),
	)

	p.publish(ctx, SubjectStarted, map[string]any{
		"id":      exec.ID,
		"command": raw,
		"user":    user.ID,
	})

	intent, act, err := p.Resolve(ctx, raw, user)
	if err != nil {
		p.logf(logging.LevelInfo, logging.CategoryResolver, "no_match", exec.ID,
			"no action matched", map[string]any{"command": raw})
		return p.finalize(ctx, exec, action.Fail("no action matched"))
	}
	exec.Intent = intent

	payload, err := act.Schema().Validate(intent.Payload)
	if err != nil {
		p.logf(logging.LevelInfo, logging.CategoryResolver, "validation_failed", exec.ID,
			err.Error(), map[string]any{"action": intent.Action})
		return p.finalize(ctx, exec, action.Fail(fieldMessage(err)))
	}
	intent.Payload = payload

	if perm := act.Permission(); perm != "" {
		if !p.allowed(ctx, exec.ID, user, perm) {
			return p.finalize(ctx, exec, action.Fail("permission denied"))
		}
	}

	relay := &relaySink{ctx: ctx, processor: p, execID: exec.ID, next: sink}
	result := p.dispatch(ctx, exec.ID, act, intent.Payload, relay)
	exec.Steps = relay.steps

	return p.finalize(ctx, exec, result)
}

// Resolve runs resolution only (candidate filtering, pattern rules, AI
// fallback) and reports ErrNoMatch when nothing resolves. Parser failures
// and timeouts degrade to ErrNoMatch; they never propagate.
func (p *Processor) Resolve(ctx context.Context, raw string, user auth.User) (*Intent, action.Action, error) {
	ctx, span := telemetry.StartSpan(ctx, "command.resolve")
	defer span.End()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, ErrNoMatch
	}

	candidates := p.Candidates(user)
	if len(candidates) == 0 {
		return nil, nil, ErrNoMatch
	}
	byName := make(map[string]action.Action, len(candidates))
	for _, a := range candidates {
		byName[a.Name()] = a
	}

	// Pattern stage: first registered rule that matches wins.
	for _, rule := range p.rules {
		payload, ok, err := rule.Match(raw)
		if err != nil {
			p.logf(logging.LevelWarn, logging.CategoryResolver, "rule_extract_failed", "",
				err.Error(), map[string]any{"action": rule.Action})
			continue
		}
		if !ok {
			continue
		}
		act, active := byName[rule.Action]
		if !active {
			p.logf(logging.LevelDebug, logging.CategoryResolver, "rule_action_inactive", "",
				"rule matched an action that is not currently resolvable",
				map[string]any{"action": rule.Action})
			continue
		}
		telemetry.SetAttributes(ctx,
			telemetry.AttrCommandSource.String(string(SourcePattern)),
			telemetry.AttrActionName.String(rule.Action),
		)
		return &Intent{Raw: raw, Action: rule.Action, Payload: payload, Source: SourcePattern}, act, nil
	}

	if p.parser == nil {
		return nil, nil, ErrNoMatch
	}

	// AI fallback, individually time-bounded. Every failure mode here is
	// equivalent to "no match" for the caller.
	metrics.ParseFallback()
	parseCtx, cancel := context.WithTimeout(ctx, p.parseTimeout)
	defer cancel()

	res, err := p.parser.Parse(parseCtx, ParseRequest{
		Command: raw,
		Actions: describeActions(candidates),
		Context: p.collectContext(parseCtx),
	})
	if err != nil {
		if stderrors.Is(err, ErrNoMatch) {
			metrics.ParserRequest("no_match")
		} else {
			metrics.ParserRequest("error")
			p.logf(logging.LevelWarn, logging.CategoryResolver, "parse_failed", "",
				err.Error(), map[string]any{"command": raw})
		}
		return nil, nil, ErrNoMatch
	}

	act, active := byName[res.Action]
	if !active {
		metrics.ParserRequest("unknown_action")
		p.logf(logging.LevelWarn, logging.CategoryResolver, "parse_unknown_action", "",
			"parser chose an action that is not currently resolvable",
			map[string]any{"action": res.Action})
		return nil, nil, ErrNoMatch
	}
	metrics.ParserRequest("match")

	payload := action.Payload(res.Payload)
	if payload == nil {
		payload = action.Payload{}
	}
	telemetry.SetAttributes(ctx,
		telemetry.AttrCommandSource.String(string(SourceAI)),
		telemetry.AttrActionName.String(res.Action),
	)
	return &Intent{Raw: raw, Action: res.Action, Payload: payload, Source: SourceAI}, act, nil
}

// allowed consults the permission checker, treating a missing checker or a
// checker error as a denial.
func (p *Processor) allowed(ctx context.Context, execID string, user auth.User, permission string) bool {
	if p.permissions == nil {
		p.logf(logging.LevelWarn, logging.CategoryDispatch, "permission_unchecked", execID,
			"action requires a permission but no checker is configured",
			map[string]any{"permission": permission})
		return false
	}
	ok, err := p.permissions.Allowed(ctx, user, permission)
	if err != nil {
		p.logf(logging.LevelError, logging.CategoryDispatch, "permission_check_failed", execID,
			err.Error(), map[string]any{"permission": permission, "user": user.ID})
		return false
	}
	if !ok {
		p.logf(logging.LevelInfo, logging.CategoryDispatch, "permission_denied", execID,
			"permission denied", map[string]any{"permission": permission, "user": user.ID})
	}
	return ok
}

// dispatch invokes the handler with panic containment. The handler's own
// Result passes through untouched; faults become a failed Result with a
// sanitized message while the full detail goes to the log.
func (p *Processor) dispatch(ctx context.Context, execID string, act action.Action, payload action.Payload, sink action.Sink) (result *action.Result) {
	ctx, span := telemetry.StartSpan(ctx, "command.dispatch")
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			p.logf(logging.LevelError, logging.CategoryDispatch, "handler_panic", execID,
				fmt.Sprintf("handler for %s panicked: %v", act.Name(), rec),
				map[string]any{"action": act.Name(), "stack": string(debug.Stack())})
			result = action.Fail(fmt.Sprintf("%s failed", act.Name()))
		}
	}()

	res, err := act.HandleWithProgress(ctx, payload, sink)
	if err != nil {
		telemetry.RecordError(ctx, err)
		p.logf(logging.LevelError, logging.CategoryDispatch, "handler_error", execID,
			err.Error(), map[string]any{"action": act.Name()})
		return action.Fail(errors.UserMessage(err, fmt.Sprintf("%s failed", act.Name())))
	}
	if res == nil {
		p.logf(logging.LevelError, logging.CategoryDispatch, "handler_no_result", execID,
			"handler returned neither a result nor an error",
			map[string]any{"action": act.Name()})
		return action.Fail(fmt.Sprintf("%s failed", act.Name()))
	}
	return res
}

// finalize stamps the transcript, records it best-effort, publishes the
// completion event, observes metrics, and returns the terminal Result.
func (p *Processor) finalize(ctx context.Context, exec *Execution, result *action.Result) *action.Result {
	if len(result.CompletedSteps) == 0 && len(exec.Steps) > 0 {
		result.CompletedSteps = flattenSteps(exec.Steps)
	}
	exec.Result = result
	exec.Duration = time.Since(exec.StartedAt)

	actionName, source := "", ""
	if exec.Intent != nil {
		actionName = exec.Intent.Action
		source = string(exec.Intent.Source)
	}
	telemetry.SetAttributes(ctx,
		telemetry.AttrResultStatus.String(string(result.Status)),
		telemetry.AttrStepCount.Int(len(exec.Steps)),
	)

	if err := p.audit.Record(ctx, exec); err != nil {
		metrics.AuditFailure()
		p.logf(logging.LevelError, logging.CategoryAudit, "record_failed", exec.ID,
			err.Error(), map[string]any{"action": actionName})
	}

	p.publish(ctx, SubjectCompleted, map[string]any{
		"id":          exec.ID,
		"action":      actionName,
		"status":      result.Status,
		"duration_ms": exec.Duration.Milliseconds(),
	})
	metrics.ObserveCommand(actionName, string(result.Status), source, exec.Duration)
	return result
}

func (p *Processor) collectContext(ctx context.Context) map[string]map[string]any {
	if p.contextInfo == nil {
		return nil
	}
	return p.contextInfo.Collect(ctx)
}

func (p *Processor) publish(ctx context.Context, subject string, payload map[string]any) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, subject, data); err != nil {
		p.logf(logging.LevelWarn, logging.CategoryBus, "publish_failed", "",
			err.Error(), map[string]any{"subject": subject})
	}
}

func (p *Processor) logf(level logging.Level, category logging.Category, eventType, execID, message string, details map[string]any) {
	if p.logger == nil {
		return
	}
	_ = p.logger.Log(logging.Event{
		Level:     level,
		Category:  category,
		EventType: eventType,
		RequestID: execID,
		Message:   message,
		Details:   details,
	})
}

// relaySink records every step for the transcript and forwards it to the
// caller's sink. Handlers emit synchronously, so no locking is needed and
// per-phase ordering is preserved as emitted.
type relaySink struct {
	ctx       context.Context
	processor *Processor
	execID    string
	next      action.Sink
	steps     []action.Step
}

func (s *relaySink) Emit(step action.Step) {
	s.steps = append(s.steps, step)
	metrics.ObserveStep(string(step.Status))
	s.processor.publish(s.ctx, SubjectStep, map[string]any{
		"id":     s.execID,
		"step":   step.Label,
		"status": step.Status,
	})
	s.next.Emit(step)
}

// describeActions renders candidates for the parsing service.
func describeActions(actions []action.Action) []CandidateAction {
	out := make([]CandidateAction, 0, len(actions))
	for _, a := range actions {
		out = append(out, CandidateAction{
			Name:        a.Name(),
			Description: a.Description(),
			Schema:      a.Schema().JSONSchema(),
		})
	}
	return out
}

// flattenSteps renders the human-readable completed-steps log: the final
// status of each phase label, in first-emission order.
func flattenSteps(steps []action.Step) []string {
	last := make(map[string]action.StepStatus, len(steps))
	var order []string
	for _, s := range steps {
		if _, seen := last[s.Label]; !seen {
			order = append(order, s.Label)
		}
		last[s.Label] = s.Status
	}
	out := make([]string, 0, len(order))
	for _, label := range order {
		out = append(out, fmt.Sprintf("%s: %s", label, last[label]))
	}
	return out
}

// fieldMessage extracts the field-level message from a validation error,
// keeping the error-code prefix out of user-facing results.
func fieldMessage(err error) string {
	var perr *errors.Error
	if stderrors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
