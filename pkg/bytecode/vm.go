package bytecode

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"
)

var vmLog = commonlog.GetLogger("luw.vm")

// Result is the outcome of one dispatched command: its output streams
// and exit code. A command that ran and failed is carried here as
// data; only a command that could not be dispatched at all surfaces
// as a Go error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Dispatcher resolves and runs commands on behalf of the VM. The VM
// never knows what a command does; it only routes names, arguments
// and flags through this interface. A returned error means the name
// could not be resolved or the external shell could not be started,
// and faults the VM run.
type Dispatcher interface {
	// Dispatch runs a named command with positional arguments and flags.
	Dispatch(ctx context.Context, name string, args []string, flags map[string]string) (Result, error)

	// Passthrough hands a raw line to an external shell
	// (ShellKindPwsh or ShellKindCmd).
	Passthrough(ctx context.Context, kind byte, line string) (Result, error)

	// Directive applies a session directive such as suppressdebug.
	Directive(name string) error
}

// Environment is the variable store the VM reads and writes.
type Environment interface {
	// Lookup returns a shell variable binding. The second return is
	// false when the variable is undefined.
	Lookup(name string) (string, bool)

	// Set binds a shell variable.
	Set(name, value string)

	// Getenv reads a process environment variable. Unset names
	// return the empty string.
	Getenv(name string) string
}

// MemberResult is the outcome of one cluster member, in member order.
type MemberResult struct {
	Index  int
	Line   string
	Result Result
}

// ClusterRunner executes a batch of member lines concurrently and
// returns one result per member, in member order. Member failures are
// data inside MemberResult; the runner itself never fails.
type ClusterRunner interface {
	RunCluster(ctx context.Context, lines []string) []MemberResult
}

// State is the VM lifecycle state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspendedOnCluster
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspendedOnCluster:
		return "suspended-on-cluster"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RuntimeFault is an unrecoverable execution error: stack underflow,
// an undefined variable, a failed dispatch, or a corrupt instruction
// stream. A fault moves the VM to StateFailed.
type RuntimeFault struct {
	IP     int
	Op     Opcode
	Reason string

	// Err is the underlying cause when the fault wraps one, such as
	// a dispatch failure.
	Err error
}

func (f *RuntimeFault) Error() string {
	return fmt.Sprintf("runtime fault at offset %d (%s): %s", f.IP, f.Op, f.Reason)
}

func (f *RuntimeFault) Unwrap() error { return f.Err }

// VM executes a chunk against a string operand stack. All side
// effects flow through the injected Dispatcher, Environment and
// ClusterRunner; the VM itself only moves strings around.
type VM struct {
	chunk *Chunk
	ip    int
	stack []string
	sp    int

	state        State
	exitRegister int

	dispatcher Dispatcher
	env        Environment
	cluster    ClusterRunner

	stdout io.Writer
	stderr io.Writer

	// Pending cluster batch, collected between OpSpawnCluster and
	// OpJoinCluster.
	pendingCluster int

	// Debug/trace mode
	Trace bool
}

// NewVM creates a VM for the chunk. Output defaults to discard until
// SetOutput is called.
func NewVM(chunk *Chunk, dispatcher Dispatcher, env Environment, cluster ClusterRunner) *VM {
	return &VM{
		chunk:      chunk,
		stack:      make([]string, 256),
		state:      StateReady,
		dispatcher: dispatcher,
		env:        env,
		cluster:    cluster,
		stdout:     io.Discard,
		stderr:     io.Discard,
	}
}

// SetOutput directs the VM's command output streams.
func (vm *VM) SetOutput(stdout, stderr io.Writer) {
	if stdout != nil {
		vm.stdout = stdout
	}
	if stderr != nil {
		vm.stderr = stderr
	}
}

// State returns the current lifecycle state.
func (vm *VM) State() State {
	return vm.state
}

// ExitRegister returns the exit code of the most recently completed
// command. It is the script's exit code once the VM completes.
func (vm *VM) ExitRegister() int {
	return vm.exitRegister
}

// Run executes the chunk to completion. It returns a *RuntimeFault if
// execution faults, in which case the VM is left in StateFailed.
func (vm *VM) Run(ctx context.Context) error {
	if vm.state != StateReady {
		return fmt.Errorf("vm is %s, not ready", vm.state)
	}
	vm.state = StateRunning
	vmLog.Debugf("run: %d code bytes, %d constants", len(vm.chunk.Code), len(vm.chunk.Constants))

	err := vm.run(ctx)
	if err != nil {
		vm.state = StateFailed
		vmLog.Debugf("run failed: %s", err)
		return err
	}
	vm.state = StateCompleted
	return nil
}

// run is the main execution loop.
func (vm *VM) run(ctx context.Context) error {
	for {
		if vm.ip >= len(vm.chunk.Code) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &RuntimeFault{IP: vm.ip, Op: OpNop, Reason: err.Error()}
		}

		opOffset := vm.ip
		op := Opcode(vm.chunk.Code[vm.ip])
		vm.ip++

		if vm.Trace {
			fmt.Fprintf(vm.stderr, "[%04x] %-14s sp=%d\n", opOffset, op, vm.sp)
		}

		switch op {
		case OpNop:
			// Do nothing

		case OpHalt:
			return nil

		case OpPop:
			if _, err := vm.pop(opOffset, op); err != nil {
				return err
			}

		case OpConst:
			idx := vm.readUint16()
			vm.push(vm.chunk.Constants[idx])

		case OpLoadVar:
			name := vm.chunk.Constants[vm.readUint16()]
			val, ok := vm.env.Lookup(name)
			if !ok {
				return &RuntimeFault{IP: opOffset, Op: op, Reason: fmt.Sprintf("undefined variable $%s", name)}
			}
			vm.push(val)

		case OpStoreVar:
			name := vm.chunk.Constants[vm.readUint16()]
			val, err := vm.pop(opOffset, op)
			if err != nil {
				return err
			}
			vm.env.Set(name, val)

		case OpLoadEnv:
			name := vm.chunk.Constants[vm.readUint16()]
			vm.push(vm.env.Getenv(name))

		case OpJoin:
			n := int(vm.chunk.Code[vm.ip])
			vm.ip++
			parts, err := vm.popN(n, opOffset, op)
			if err != nil {
				return err
			}
			vm.push(strings.Join(parts, " "))

		case OpEq, OpNe:
			b, err := vm.pop(opOffset, op)
			if err != nil {
				return err
			}
			a, err := vm.pop(opOffset, op)
			if err != nil {
				return err
			}
			eq := a == b
			if op == OpNe {
				eq = !eq
			}
			vm.pushBool(eq)

		case OpJump:
			delta := vm.readInt16()
			vm.ip += int(delta)

		case OpJumpFalse:
			delta := vm.readInt16()
			cond, err := vm.pop(opOffset, op)
			if err != nil {
				return err
			}
			if !isTruthy(cond) {
				vm.ip += int(delta)
			}

		case OpCall:
			if err := vm.execCall(ctx, opOffset); err != nil {
				return err
			}

		case OpShell:
			kind := vm.chunk.Code[vm.ip]
			vm.ip++
			line, err := vm.pop(opOffset, op)
			if err != nil {
				return err
			}
			res, derr := vm.dispatcher.Passthrough(ctx, kind, line)
			if derr != nil {
				return &RuntimeFault{IP: opOffset, Op: op, Reason: derr.Error(), Err: derr}
			}
			vm.writeResult(res)
			vm.exitRegister = res.ExitCode

		case OpDirective:
			name := vm.chunk.Constants[vm.readUint16()]
			if err := vm.dispatcher.Directive(name); err != nil {
				return &RuntimeFault{IP: opOffset, Op: op, Reason: err.Error()}
			}

		case OpSpawnCluster:
			vm.pendingCluster = int(vm.readUint16())

		case OpJoinCluster:
			if err := vm.execJoinCluster(ctx, opOffset); err != nil {
				return err
			}

		default:
			return &RuntimeFault{IP: opOffset, Op: op, Reason: "unknown opcode"}
		}
	}
}

// execCall runs an OpCall: pop the flag pairs and positional
// arguments, dispatch, stream the output, record the exit code and
// push the trimmed stdout as the call's value.
func (vm *VM) execCall(ctx context.Context, opOffset int) error {
	nameIdx := vm.readUint16()
	argc := int(vm.chunk.Code[vm.ip])
	flagc := int(vm.chunk.Code[vm.ip+1])
	vm.ip += 2
	name := vm.chunk.Constants[nameIdx]

	// Flags sit on top of the args: pairs of (name, value).
	flags := make(map[string]string, flagc)
	for i := 0; i < flagc; i++ {
		val, err := vm.pop(opOffset, OpCall)
		if err != nil {
			return err
		}
		fname, err := vm.pop(opOffset, OpCall)
		if err != nil {
			return err
		}
		flags[fname] = val
	}
	args, err := vm.popN(argc, opOffset, OpCall)
	if err != nil {
		return err
	}

	res, derr := vm.dispatcher.Dispatch(ctx, name, args, flags)
	if derr != nil {
		return &RuntimeFault{IP: opOffset, Op: OpCall, Reason: derr.Error(), Err: derr}
	}
	vm.writeResult(res)
	vm.exitRegister = res.ExitCode
	vm.push(strings.TrimSpace(res.Stdout))
	return nil
}

// execJoinCluster pops the pending member lines, hands them to the
// cluster runner and blocks on the join. The VM is suspended for the
// duration; per-member results print in member order with worker
// labels, and the exit register reflects the aggregate outcome.
func (vm *VM) execJoinCluster(ctx context.Context, opOffset int) error {
	n := vm.pendingCluster
	vm.pendingCluster = 0
	lines, err := vm.popN(n, opOffset, OpJoinCluster)
	if err != nil {
		return err
	}

	vm.state = StateSuspendedOnCluster
	results := vm.cluster.RunCluster(ctx, lines)
	vm.state = StateRunning

	WriteMemberResults(vm.stdout, vm.stderr, results)
	vm.exitRegister = aggregateExit(results)
	return nil
}

// WriteMemberResults prints cluster member outputs in member order,
// each line prefixed with its worker label.
func WriteMemberResults(stdout, stderr io.Writer, results []MemberResult) {
	for _, mr := range results {
		label := fmt.Sprintf("[worker %d] ", mr.Index)
		writeLabeled(stdout, label, mr.Result.Stdout)
		writeLabeled(stderr, label, mr.Result.Stderr)
	}
}

func writeLabeled(w io.Writer, label, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", label, line)
	}
}

// aggregateExit is 0 only when every member exited 0.
func aggregateExit(results []MemberResult) int {
	for _, mr := range results {
		if mr.Result.ExitCode != 0 {
			return 1
		}
	}
	return 0
}

// writeResult streams a command result to the VM's output writers.
func (vm *VM) writeResult(res Result) {
	if res.Stdout != "" {
		io.WriteString(vm.stdout, ensureNewline(res.Stdout))
	}
	if res.Stderr != "" {
		io.WriteString(vm.stderr, ensureNewline(res.Stderr))
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func (vm *VM) push(val string) {
	if vm.sp >= len(vm.stack) {
		vm.stack = append(vm.stack, val)
		vm.sp++
		return
	}
	vm.stack[vm.sp] = val
	vm.sp++
}

func (vm *VM) pop(opOffset int, op Opcode) (string, error) {
	if vm.sp == 0 {
		return "", &RuntimeFault{IP: opOffset, Op: op, Reason: "stack underflow"}
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

// popN pops n values and returns them in push order.
func (vm *VM) popN(n, opOffset int, op Opcode) ([]string, error) {
	if vm.sp < n {
		return nil, &RuntimeFault{IP: opOffset, Op: op, Reason: "stack underflow"}
	}
	vals := make([]string, n)
	copy(vals, vm.stack[vm.sp-n:vm.sp])
	vm.sp -= n
	return vals, nil
}

func (vm *VM) pushBool(b bool) {
	if b {
		vm.push("true")
	} else {
		vm.push("false")
	}
}

// isTruthy treats the empty string, "0" and "false" as false.
func isTruthy(s string) bool {
	return s != "" && s != "0" && s != "false"
}

func (vm *VM) readUint16() uint16 {
	v := binary.BigEndian.Uint16(vm.chunk.Code[vm.ip:])
	vm.ip += 2
	return v
}

func (vm *VM) readInt16() int16 {
	return int16(vm.readUint16())
}
