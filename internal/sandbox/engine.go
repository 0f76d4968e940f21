package sandbox

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"dungeon-skill-sandbox/internal/game"
)

// Config bounds a single engine's executions.
type Config struct {
	Timeout        time.Duration // default per-fragment deadline
	MaxTimeout     time.Duration // hard cap on requested deadlines
	MaxSourceBytes int
	MaxOutputBytes int
}

// DefaultConfig returns the engine limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxTimeout:     120 * time.Second,
		MaxSourceBytes: 64 * 1024,
		MaxOutputBytes: 256 * 1024,
	}
}

// Engine validates and executes fragments against one game handle. The
// handle represents a single live session, so executions are serialized:
// a second submission while one runs fails with ErrBusy.
type Engine struct {
	handle    game.Handle
	validator *Validator
	cfg       Config
	mu        sync.Mutex
}

func NewEngine(handle game.Handle, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = def.MaxSourceBytes
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	return &Engine{
		handle:    handle,
		validator: NewValidator(),
		cfg:       cfg,
	}
}

// Validate statically checks a fragment without executing it.
func (e *Engine) Validate(sub Submission) ValidationResult {
	return e.validator.Validate(normalize(sub))
}

type outcome struct {
	payload any
	err     error
}

// Execute validates, then runs the fragment against the game handle
// under the dual timeout. A failed fragment run (Lua error, timeout,
// missing entry) still returns a populated result: whatever actions the
// fragment took before failing already happened.
func (e *Engine) Execute(ctx context.Context, sub Submission) (*ExecutionResult, error) {
	sub = normalize(sub)
	execID := uuid.New().String()
	sourceHash := fmt.Sprintf("%x", sha256.Sum256([]byte(sub.Source)))

	logger := log.With().
		Str("exec_id", execID).
		Str("mode", string(sub.Mode)).
		Str("source_hash", sourceHash[:16]).
		Logger()
	logger.Info().Msg("execution requested")

	if err := e.validateRequest(sub); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "validate_request", Err: err}
	}

	vres := e.validator.Validate(sub)
	if !vres.Valid {
		logger.Warn().Str("violation", vres.Errors[0].String()).Msg("validation rejected fragment")
		return nil, &ExecutionError{ExecID: execID, Op: "validate",
			Err: fmt.Errorf("%w: %s", ErrValidation, vres.Errors[0])}
	}

	if !e.mu.TryLock() {
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_session", Err: ErrBusy}
	}
	defer e.mu.Unlock()

	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	start := time.Now()
	turnsBefore := e.handle.Stats().Turn
	msgsBefore := e.handle.Messages()

	output := &syncBuffer{}
	L := newRestrictedState(output)
	prox := newProxy(e.handle)
	bindGlobals(L, prox)

	// The governor is scoped to this invocation's state: an abandoned
	// worker disarming late can never block a later invocation.
	var gov governor
	execCtx, release, err := gov.arm(ctx, L, timeout)
	if err != nil {
		L.Close()
		return nil, &ExecutionError{ExecID: execID, Op: "arm_governor", Err: err}
	}

	// The worker owns the state from here: it closes it and disarms the
	// governor when the call returns, even if it is abandoned below.
	var out outcome
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer release()
		defer L.Close()
		out = e.run(L, sub, vres)
	}()

	assemble := func() *ExecutionResult {
		calls, explore := prox.snapshot()
		return &ExecutionResult{
			ID:           execID,
			Output:       truncateOutput(output.String(), e.cfg.MaxOutputBytes),
			Messages:     collectMessages(msgsBefore, e.handle.Messages(), e.handle.Message()),
			Calls:        calls,
			Explore:      explore,
			Elapsed:      time.Since(start),
			ActionsTaken: len(calls),
			TurnsElapsed: e.handle.Stats().Turn - turnsBefore,
			SourceHash:   sourceHash,
		}
	}

	select {
	case <-workerDone:
	case <-execCtx.Done():
		// Deadline expiry abandons a worker stuck in a Go-side capability
		// call; so does the caller canceling. A plain cancel while the
		// caller's context is still live can only be the worker's own
		// release racing ahead of the workerDone close, so the worker is
		// finishing: wait for its outcome instead of misreporting it.
		if execCtx.Err() == context.DeadlineExceeded || ctx.Err() != nil {
			res := assemble()
			if execCtx.Err() == context.DeadlineExceeded {
				logger.Warn().Msg("execution timed out, abandoning worker")
				res.Error = fmt.Sprintf("execution exceeded %s timeout", timeout)
				return res, &ExecutionError{ExecID: execID, Op: "run", Err: ErrTimeout}
			}
			res.Error = "execution canceled"
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: execCtx.Err()}
		}
		<-workerDone
	}

	res := assemble()
	if out.err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			logger.Warn().Dur("elapsed", res.Elapsed).Msg("execution timed out")
			res.Error = fmt.Sprintf("execution exceeded %s timeout", timeout)
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: ErrTimeout}
		}
		if errors.Is(out.err, ErrMissingEntry) {
			res.Error = out.err.Error()
			return res, &ExecutionError{ExecID: execID, Op: "entry", Err: out.err}
		}
		res.Error = luaErrorMessage(out.err)
		logger.Info().Dur("elapsed", res.Elapsed).Str("error", res.Error).Msg("execution failed")
		return res, nil
	}
	res.Success = true
	res.Payload = out.payload
	logger.Info().
		Dur("elapsed", res.Elapsed).
		Int("actions", res.ActionsTaken).
		Int("turns", res.TurnsElapsed).
		Msg("execution completed")
	return res, nil
}

// run executes on the worker goroutine, which is the sole user of L.
func (e *Engine) run(L *lua.LState, sub Submission, vres ValidationResult) outcome {
	fn, err := L.Load(strings.NewReader(sub.Source), "fragment")
	if err != nil {
		return outcome{err: err}
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return outcome{err: err}
	}
	ret := L.Get(-1)
	L.Pop(1)

	if sub.Mode == ModeAdhoc {
		return outcome{payload: fromLua(ret)}
	}

	// Named mode: the chunk defined functions; call the resolved entry
	// with the handle and the parameter table.
	entryName := vres.ResolvedEntry
	if entryName == "" {
		entryName = sub.EntryName
	}
	entry, ok := L.GetGlobal(entryName).(*lua.LFunction)
	if !ok {
		return outcome{err: fmt.Errorf("%w: %q is not a function", ErrMissingEntry, entryName)}
	}

	params := L.NewTable()
	for _, p := range sub.Params {
		params.RawSetString(p.Name, toLua(L, p.Value))
	}

	if err := L.CallByParam(lua.P{Fn: entry, NRet: 1, Protect: true},
		L.GetGlobal(HandleGlobal), params); err != nil {
		return outcome{err: err}
	}
	ret = L.Get(-1)
	L.Pop(1)
	return outcome{payload: fromLua(ret)}
}

func (e *Engine) validateRequest(sub Submission) error {
	if strings.TrimSpace(sub.Source) == "" {
		return fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}
	if len(sub.Source) > e.cfg.MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds %d byte limit", ErrInvalidRequest, e.cfg.MaxSourceBytes)
	}
	switch sub.Mode {
	case ModeAdhoc:
	case ModeNamed:
		if sub.EntryName == "" {
			return fmt.Errorf("%w: entry name required in named mode", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, sub.Mode)
	}
	if sub.Timeout > e.cfg.MaxTimeout {
		return fmt.Errorf("%w: timeout exceeds %s maximum", ErrInvalidRequest, e.cfg.MaxTimeout)
	}
	return nil
}

func normalize(sub Submission) Submission {
	if sub.Mode == "" {
		sub.Mode = ModeAdhoc
	}
	return sub
}

func luaErrorMessage(err error) string {
	var ae *lua.ApiError
	if errors.As(err, &ae) {
		return ae.Object.String()
	}
	return err.Error()
}
