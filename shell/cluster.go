package shell

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/tliron/commonlog"

	"github.com/luwshell/luw/compiler"
	"github.com/luwshell/luw/pkg/bytecode"
)

var clusterLog = commonlog.GetLogger("luw.cluster")

const (
	// DefaultThreadCount caps concurrently running cluster members.
	DefaultThreadCount = 4

	// exitTimedOut is reported for a member that hit its deadline.
	exitTimedOut = 124

	// exitUnavailable is reported for a member whose command could
	// not be dispatched.
	exitUnavailable = 127

	// parseCacheSize bounds the parsed-line cache. Batches often
	// repeat member lines (polling loops, fan-out over the same
	// command), so parses are worth keeping.
	parseCacheSize = 256
)

// Scheduler runs cluster batches: every member line executes on its
// own goroutine against a fork of the session context, capped by the
// thread count. Joining returns one result per member in member
// order. Member failures are data; the scheduler itself never fails.
type Scheduler struct {
	dispatcher *Dispatcher
	base       *Context

	sem   chan struct{}
	cache *lru.ARCCache

	// MemberTimeout bounds each member. Zero means no bound beyond
	// the caller's context.
	MemberTimeout time.Duration
}

// NewScheduler creates a scheduler over the session's dispatcher and
// context. threads <= 0 selects the default cap.
func NewScheduler(dispatcher *Dispatcher, base *Context, threads int) *Scheduler {
	if threads <= 0 {
		threads = DefaultThreadCount
	}
	cache, err := lru.NewARC(parseCacheSize)
	if err != nil {
		panic(err) // only fails for non-positive sizes
	}
	return &Scheduler{
		dispatcher: dispatcher,
		base:       base,
		sem:        make(chan struct{}, threads),
		cache:      cache,
	}
}

type memberDone struct {
	result bytecode.MemberResult
}

// slotKey marks a context whose goroutine currently holds one of the
// scheduler's thread slots.
type slotKey struct{}

// RunCluster executes the member lines concurrently and blocks until
// every member finishes. Results come back in member order.
func (s *Scheduler) RunCluster(ctx context.Context, lines []string) []bytecode.MemberResult {
	batchID := uuid.NewString()
	if !s.dispatcher.Gate.Suppressed() {
		clusterLog.Debugf("cluster %s: %d members, cap %d", batchID, len(lines), cap(s.sem))
	}

	// A member spawning a nested cluster still holds its own slot.
	// Hand the slot back while the children run so they cannot
	// starve, then take it again before the member resumes. The
	// reacquire always terminates because children release their
	// slots unconditionally.
	if holding, _ := ctx.Value(slotKey{}).(bool); holding {
		s.release()
		defer func() { s.sem <- struct{}{} }()
	}

	channels := make([]chan memberDone, len(lines))
	for i, line := range lines {
		channels[i] = make(chan memberDone, 1)
		go s.runMember(ctx, i, line, channels[i])
	}

	results := make([]bytecode.MemberResult, len(lines))
	for i, ch := range channels {
		done := <-ch
		results[i] = done.result
	}
	if !s.dispatcher.Gate.Suppressed() {
		clusterLog.Debugf("cluster %s: joined", batchID)
	}
	return results
}

// runMember executes one member line and sends exactly one completion
// message.
func (s *Scheduler) runMember(ctx context.Context, index int, line string, done chan<- memberDone) {
	if s.MemberTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.MemberTimeout)
		defer cancel()
	}

	if err := s.acquire(ctx); err != nil {
		code := 1
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			code = exitTimedOut
			msg = "member timed out"
		}
		done <- memberDone{result: bytecode.MemberResult{
			Index:  index,
			Line:   line,
			Result: bytecode.Result{Stderr: msg + "\n", ExitCode: code},
		}}
		return
	}
	defer s.release()

	ctx = context.WithValue(ctx, slotKey{}, true)
	done <- memberDone{result: bytecode.MemberResult{
		Index:  index,
		Line:   line,
		Result: s.execLine(ctx, line),
	}}
}

// acquire takes a thread slot, giving up if the member's context ends
// while it waits.
func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() { <-s.sem }

// execLine parses and interprets a single member line against a
// forked context.
func (s *Scheduler) execLine(ctx context.Context, line string) bytecode.Result {
	expanded := s.dispatcher.Aliases.ExpandLine(line)
	if expanded != line {
		s.dispatcher.Gate.Debugf("alias expanded: %s -> %s", line, expanded)
	}

	script, err := s.parseLine(expanded)
	if err != nil {
		return bytecode.Result{Stderr: err.Error(), ExitCode: 2}
	}

	var stdout, stderr bytes.Buffer
	fork := s.base.Fork(&stdout, &stderr)
	interp := NewInterp(s.dispatcher.WithContext(fork), fork, s, &stdout, &stderr)

	runErr := interp.Run(ctx, script)
	res := bytecode.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: interp.ExitRegister(),
	}
	var dispatchErr *DispatchError
	switch {
	case errors.Is(runErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = exitTimedOut
		res.Stderr = appendLine(res.Stderr, "member timed out")
	case errors.As(runErr, &dispatchErr):
		res.ExitCode = exitUnavailable
		res.Stderr = appendLine(res.Stderr, runErr.Error())
	case runErr != nil:
		res.ExitCode = 1
		res.Stderr = appendLine(res.Stderr, runErr.Error())
	}
	return res
}

// parseLine parses a member line, serving repeats from the cache.
// Parsed scripts are immutable, so sharing across members is safe.
func (s *Scheduler) parseLine(line string) (*compiler.Script, error) {
	if cached, found := s.cache.Get(line); found {
		return cached.(*compiler.Script), nil
	}
	script, err := compiler.Parse(line)
	if err != nil {
		return nil, err
	}
	s.cache.Add(line, script)
	return script, nil
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line + "\n"
	}
	return ensureTrailingNewline(existing) + line + "\n"
}
