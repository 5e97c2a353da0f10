package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/events"
	"github.com/fyrsmithlabs/sketchd/internal/execution"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/plan"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Generator produces candidate geometry. *oracle.Oracle implements it.
type Generator interface {
	Generate(ctx context.Context, req *oracle.Request) (*oracle.Response, error)
}

// Validator scores candidates. *validator.Validator implements it.
type Validator interface {
	Validate(ctx context.Context, candidate validator.Candidate, snapshot memory.Snapshot, instruction string) validator.Result
}

// Controller drives one session's memory. Instructions are serialized.
type Controller struct {
	mu sync.Mutex

	sessionID  string
	mem        *memory.Memory
	gen        Generator
	val        Validator
	tracker    *plan.Tracker
	mapper     *coords.Mapper
	dispatcher *execution.Dispatcher
	stop       *execution.StopSignal
	events     events.Publisher
	config     *Config
	logger     *Logger
	metrics    *Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionID tags logs and events with the session id.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// WithConfig sets the loop configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Controller) {
		if cfg != nil {
			c.config = cfg
		}
	}
}

// WithTracker sets the plan tracker. It must wrap the same memory.
func WithTracker(t *plan.Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithMapper sets the physical mapping used for execution.
func WithMapper(m *coords.Mapper) Option {
	return func(c *Controller) { c.mapper = m }
}

// WithDispatcher enables execution of confirmed strokes.
func WithDispatcher(d *execution.Dispatcher) Option {
	return func(c *Controller) { c.dispatcher = d }
}

// WithStopSignal shares a stop flag with other holders.
func WithStopSignal(s *execution.StopSignal) Option {
	return func(c *Controller) { c.stop = s }
}

// WithEvents sets the event publisher.
func WithEvents(p events.Publisher) Option {
	return func(c *Controller) { c.events = p }
}

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller over mem.
func New(mem *memory.Memory, gen Generator, val Validator, opts ...Option) (*Controller, error) {
	if mem == nil || gen == nil || val == nil {
		return nil, fmt.Errorf("%w: memory, generator and validator are required", ErrMissingDependency)
	}
	c := &Controller{
		mem:    mem,
		gen:    gen,
		val:    val,
		stop:   &execution.StopSignal{},
		events: events.Nop{},
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = plan.NewTracker(mem, nil)
	}
	if c.mapper == nil {
		m, err := coords.NewMapper(coords.DefaultBox())
		if err != nil {
			return nil, err
		}
		c.mapper = m
	}
	if c.logger == nil {
		c.logger = NewLogger(nil)
	}
	if c.config.RepairBudget < 0 {
		c.config.RepairBudget = 0
	}
	return c, nil
}

// Memory returns the session's ledger.
func (c *Controller) Memory() *memory.Memory {
	return c.mem
}

// StopSignal returns the session's stop flag.
func (c *Controller) StopSignal() *execution.StopSignal {
	return c.stop
}

var (
	stopWords    = []string{"stop", "quit", "exit"}
	resumeWords  = []string{"continue", "resume"}
	confirmWords = []string{"yes", "ok", "okay", "continue", "resume", "proceed", "go ahead"}
)

func isOneOf(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}

func normalize(instruction string) string {
	s := strings.ToLower(strings.TrimSpace(instruction))
	return strings.TrimRight(s, ".!")
}

// Process handles one instruction end to end. Oracle failures and
// invalid candidates are reported in the Outcome, not as errors. The
// returned error is a *plan.PlanOverrunError when the chain was cut, in
// which case the partial Outcome is returned as well.
func (c *Controller) Process(ctx context.Context, instruction string) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}

	word := normalize(instruction)
	switch {
	case isOneOf(word, stopWords):
		return c.stopLocked(ctx), nil
	case c.stop.Stopped() && isOneOf(word, resumeWords):
		return c.resumeLocked(ctx), nil
	case c.stop.Stopped():
		return &Outcome{Message: MessageStillStopped, Stopped: true}, nil
	}

	if isOneOf(word, confirmWords) {
		if p, ok := c.tracker.Pending(); ok {
			instruction = plan.ContinuationInstruction(p, p.Remaining()[0].Name)
		} else if c.mem.PendingQuestion() == "" {
			return &Outcome{Message: MessageReady}, nil
		}
	}

	out := &Outcome{InstructionID: "ins_" + uuid.NewString()}
	ctx, span := Tracer().Start(ctx, "controller.process", trace.WithAttributes(
		attribute.String("session_id", c.sessionID),
		attribute.String("instruction_id", out.InstructionID),
	))
	defer span.End()

	c.logger.InstructionReceived(ctx, c.sessionID, out.InstructionID, instruction)
	c.publish(ctx, out.InstructionID, events.TypeInstructionStarted, instruction, nil)

	err := c.run(ctx, instruction, out)

	if p, ok := c.tracker.Pending(); ok {
		out.Plan = p
	}
	out.Question = c.mem.PendingQuestion()
	var messages []string
	for _, s := range out.Stages {
		if s.Message != "" {
			messages = append(messages, s.Message)
		}
	}
	switch {
	case out.Failed:
		messages = append(messages, MessageFailed)
	case len(messages) == 0:
		messages = append(messages, oracle.DefaultAssistantMessage)
	}
	out.Message = strings.Join(messages, "\n")

	outcome := "ok"
	switch {
	case out.Overrun:
		outcome = "overrun"
		span.SetStatus(codes.Error, err.Error())
	case out.Failed:
		outcome = "failed"
		span.SetStatus(codes.Error, "no candidate")
	case err != nil:
		outcome = "error"
		span.SetStatus(codes.Error, err.Error())
	case out.Stopped:
		outcome = "stopped"
	}
	span.SetAttributes(attribute.Int("stages", len(out.Stages)), attribute.String("outcome", outcome))
	c.metrics.RecordInstruction(ctx, outcome)
	c.publish(ctx, out.InstructionID, events.TypeInstructionFinished, out.Message, out)
	return out, err
}

// run is the bounded chain loop.
func (c *Controller) run(ctx context.Context, instruction string, out *Outcome) error {
	chain := c.tracker.NewChain()
	current := instruction

	for {
		if c.stop.Stopped() {
			out.Stopped = true
			return nil
		}

		stage, resp, err := c.runStage(ctx, out.InstructionID, current, len(out.Stages))
		if err != nil {
			if errors.Is(err, ErrNoCandidate) {
				out.Failed = true
				c.logger.NoCandidate(ctx, c.sessionID, out.InstructionID, err)
				if chain.Len() > 0 {
					c.tracker.Abort(err)
				}
				return nil
			}
			return err
		}

		if !resp.HasStrokes() {
			c.answer(ctx, out.InstructionID, resp, stage)
			out.Stages = append(out.Stages, *stage)
			out.Done = resp.Done
			c.metrics.RecordStage(ctx, *stage)
			return nil
		}

		if err := c.commit(ctx, out.InstructionID, resp, stage); err != nil {
			return err
		}
		out.Stages = append(out.Stages, *stage)
		out.Done = resp.Done
		c.metrics.RecordStage(ctx, *stage)
		if stage.Execution != nil && stage.Execution.Stopped {
			out.Stopped = true
		}
		chain.Record(stage.Component)

		step, err := c.tracker.Advance(resp.ComponentDrawn, resp.ComponentsRemaining)
		if err != nil {
			return err
		}
		if !step.Continue {
			return nil
		}
		if err := chain.Allow(resp.ComponentsRemaining); err != nil {
			out.Overrun = true
			c.tracker.Abort(err)
			c.metrics.RecordOverrun(ctx)
			c.logger.Overrun(ctx, c.sessionID, out.InstructionID, err)
			return err
		}
		current = plan.ContinuationInstruction(step.Plan, step.Next)
	}
}

var errRepairWithoutStrokes = errors.New("repair reply carried no strokes")

type scored struct {
	resp   *oracle.Response
	result validator.Result
}

// runStage generates and validates until a candidate is accepted or the
// repair budget is spent. A reply without strokes ends the stage unless a
// candidate is already held.
func (c *Controller) runStage(ctx context.Context, instructionID, instruction string, index int) (*StageResult, *oracle.Response, error) {
	ctx, span := Tracer().Start(ctx, "controller.stage", trace.WithAttributes(
		attribute.String("instruction_id", instructionID),
		attribute.Int("stage", index),
	))
	defer span.End()

	m := newMachine()
	stage := &StageResult{Index: index}
	var (
		best         *scored
		issues       []validator.Issue
		priorFailure string
		lastErr      error
	)
	maxAttempts := c.config.RepairBudget + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			m.to(StateRepair)
			m.to(StateGenerated)
			c.metrics.RecordRepair(ctx)
		} else {
			m.to(StateGenerated)
		}
		stage.Attempts = attempt

		snapshot := c.mem.Summary()
		resp, err := c.gen.Generate(ctx, &oracle.Request{
			Instruction:  instruction,
			Snapshot:     snapshot,
			Plan:         snapshot.Plan,
			Issues:       issues,
			PriorFailure: priorFailure,
			Attempt:      attempt,
		})
		if err == nil && !resp.HasStrokes() && best != nil {
			err = errRepairWithoutStrokes
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, nil, ctxErr
			}
			lastErr = err
			issues, priorFailure = nil, err.Error()
			c.metrics.RecordAttempt(ctx, "error")
			c.logger.AttemptFailed(ctx, c.sessionID, instructionID, index, attempt, err)
			span.RecordError(err)
			if attempt < maxAttempts {
				c.publish(ctx, instructionID, events.TypeRepairRequested, err.Error(), nil)
			}
			continue
		}

		if !resp.HasStrokes() {
			c.metrics.RecordAttempt(ctx, "answer")
			m.to(StateAnswered)
			stage.Trace = m.trace
			stage.Message = resp.AssistantMessage
			return stage, resp, m.err
		}

		result := c.val.Validate(ctx, resp.Candidate(), snapshot, instruction)
		m.to(StateValidated)
		if best == nil || result.Score > best.result.Score {
			best = &scored{resp: resp, result: result}
		}
		if result.Valid {
			c.metrics.RecordAttempt(ctx, "valid")
			m.to(StateAccepted)
			break
		}
		c.metrics.RecordAttempt(ctx, "invalid")
		if attempt < maxAttempts {
			issues, priorFailure = result.Issues, ""
			c.logger.RepairRequested(ctx, c.sessionID, instructionID, index, attempt, result)
			c.publish(ctx, instructionID, events.TypeRepairRequested, result.RepairHints(), result)
		}
	}

	if best == nil {
		m.to(StateFailed)
		stage.Trace = m.trace
		span.SetStatus(codes.Error, "no candidate")
		return nil, nil, fmt.Errorf("%w after %d attempts: %w", ErrNoCandidate, stage.Attempts, lastErr)
	}
	if m.state != StateAccepted {
		stage.Fallback = true
		m.to(StateAccepted)
	}
	if m.err != nil {
		return nil, nil, m.err
	}

	stage.Trace = m.trace
	stage.Score = best.result.Score
	stage.Valid = best.result.Valid
	stage.Issues = best.result.Issues
	stage.Message = best.resp.AssistantMessage
	stage.Component = best.resp.ComponentDrawn
	span.SetAttributes(
		attribute.Int("attempts", stage.Attempts),
		attribute.Float64("score", stage.Score),
		attribute.Bool("fallback", stage.Fallback),
	)
	return stage, best.resp, nil
}

// answer handles a reply without strokes: a plan announcement, a
// clarifying question or a plain reply.
func (c *Controller) answer(ctx context.Context, instructionID string, resp *oracle.Response, stage *StageResult) {
	switch {
	case resp.Plan != nil && len(resp.Plan.Components) > 0:
		p, err := c.tracker.Announce(resp.Plan.Summary, resp.Plan.Components)
		if err != nil {
			c.logger.Debug(ctx, "plan rejected", zap.Error(err))
			break
		}
		// The announcement is a question: "yes" continues the plan.
		c.mem.SetPendingQuestion(resp.AssistantMessage)
		c.logger.Answered(ctx, c.sessionID, instructionID, "plan")
		c.publish(ctx, instructionID, events.TypePlanAnnounced, resp.AssistantMessage, p)
	case !resp.Done:
		c.mem.SetPendingQuestion(resp.AssistantMessage)
		c.logger.Answered(ctx, c.sessionID, instructionID, "question")
	default:
		c.mem.SetPendingQuestion("")
		c.logger.Answered(ctx, c.sessionID, instructionID, "done")
	}
	if stage.Message == "" {
		stage.Message = oracle.DefaultAssistantMessage
	}
}

// commit stores the accepted candidate and executes it when confirmed.
func (c *Controller) commit(ctx context.Context, instructionID string, resp *oracle.Response, stage *StageResult) error {
	state := memory.StateConfirmed
	if c.config.PreviewMode || (stage.Fallback && !stage.Valid && !c.config.ExecuteInvalidFallback) {
		state = memory.StatePreview
	}

	added, err := c.mem.AddStrokes(resp.Strokes, resp.Labels, state)
	if err != nil {
		return fmt.Errorf("committing stage %d: %w", stage.Index, err)
	}
	c.mem.SetPendingQuestion("")

	stage.Trace = append(stage.Trace, StateCommitted)
	stage.StrokeIDs = added.IDs
	stage.StrokeState = state
	stage.Rejected = added.Rejected
	stage.BoundsWarnings = len(added.BoundsWarnings)
	seen := make(map[string]bool)
	for _, i := range sortedKeys(added.Labels) {
		if l := added.Labels[i]; !seen[l] {
			seen[l] = true
			stage.Labels = append(stage.Labels, l)
		}
	}
	if stage.Component == "" && len(stage.Labels) > 0 {
		stage.Component = stage.Labels[0]
	}
	if stage.Message == "" {
		stage.Message = oracle.DefaultAssistantMessage
	}

	c.logger.StageCommitted(ctx, c.sessionID, instructionID, *stage)
	c.publish(ctx, instructionID, events.TypeStageCommitted, stage.Message, stage)

	if state == memory.StateConfirmed {
		stage.Execution = c.execute(ctx, instructionID, c.mem.Strokes(added.IDs...))
	}
	return nil
}

// execute hands confirmed strokes to the dispatcher. Failures are
// reported, never rolled back.
func (c *Controller) execute(ctx context.Context, instructionID string, strokes []memory.Stroke) *execution.Report {
	if c.dispatcher == nil || len(strokes) == 0 {
		return nil
	}
	lines := make([][]coords.Point, 0, len(strokes))
	for _, s := range strokes {
		if s.State != memory.StateConfirmed {
			continue
		}
		lines = append(lines, s.Points)
	}
	if len(lines) == 0 {
		return nil
	}
	report := c.dispatcher.Run(ctx, execution.Job{
		SessionID:     c.sessionID,
		InstructionID: instructionID,
		Polylines:     c.mapper.Polylines(lines),
	}, c.stop)
	if len(report.Failed) > 0 {
		c.logger.ExecutionFailed(ctx, c.sessionID, instructionID, len(report.Failed))
	}
	c.publish(ctx, instructionID, events.TypeExecutionReported, "", report)
	return &report
}

// Confirm promotes preview strokes and executes them.
func (c *Controller) Confirm(ctx context.Context) (*ConfirmResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop.Stopped() {
		return &ConfirmResult{Message: MessageStillStopped}, nil
	}
	promoted := c.mem.ConfirmPreview()
	if len(promoted) == 0 {
		return &ConfirmResult{Message: MessageNothingToAdd}, nil
	}
	instructionID := "ins_" + uuid.NewString()
	res := &ConfirmResult{
		Confirmed: len(promoted),
		Message:   fmt.Sprintf("Confirmed %d stroke(s).", len(promoted)),
	}
	c.publish(ctx, instructionID, events.TypePreviewConfirmed, res.Message, res.Confirmed)
	res.Execution = c.execute(ctx, instructionID, promoted)
	return res, nil
}

// Reject discards preview strokes.
func (c *Controller) Reject(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.mem.RejectPreviewStrokes()
	if n > 0 {
		c.publish(ctx, "", events.TypePreviewRejected, fmt.Sprintf("Discarded %d stroke(s).", n), n)
	}
	return n
}

// Undo logically removes the last n strokes. Ink already drawn stays.
func (c *Controller) Undo(ctx context.Context, n int) []memory.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mem.UndoLast(n)
}

// Stop raises the stop signal and halts the executor. It does not wait
// for a running instruction; the dispatcher checks the flag between
// chunks.
func (c *Controller) Stop(ctx context.Context) {
	c.stop.Stop()
	c.halt(ctx)
	c.logger.Control(ctx, c.sessionID, "stop")
	c.publish(ctx, "", events.TypeStopped, MessageStopped, nil)
}

// Resume clears the stop signal.
func (c *Controller) Resume(ctx context.Context) {
	c.stop.Resume()
	c.logger.Control(ctx, c.sessionID, "resume")
	c.publish(ctx, "", events.TypeResumed, MessageResumed, nil)
}

func (c *Controller) stopLocked(ctx context.Context) *Outcome {
	c.Stop(ctx)
	return &Outcome{Message: MessageStopped, Stopped: true}
}

func (c *Controller) resumeLocked(ctx context.Context) *Outcome {
	c.Resume(ctx)
	return &Outcome{Message: MessageResumed}
}

func (c *Controller) halt(ctx context.Context) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Halt(ctx); err != nil {
		c.logger.Debug(ctx, "halt failed", zap.String("session_id", c.sessionID), zap.Error(err))
	}
}

func (c *Controller) publish(ctx context.Context, instructionID string, t events.Type, msg string, data any) {
	err := c.events.Publish(ctx, events.Event{
		Type:          t,
		SessionID:     c.sessionID,
		InstructionID: instructionID,
		Message:       msg,
		Data:          data,
	})
	if err != nil {
		c.logger.Debug(ctx, "event not published", zap.String("type", string(t)), zap.Error(err))
	}
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
