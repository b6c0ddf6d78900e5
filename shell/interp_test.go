package shell

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/luwshell/luw/pkg/bytecode"
)

// runBothModes runs the same source interpreted and compiled, each in
// a fresh session, and returns both transcripts.
func runBothModes(t *testing.T, src string) (interpOut string, interpExit int, vmOut string, vmExit int) {
	t.Helper()

	isess, istdout, _ := newTestSession(t)
	exit, err := isess.RunScript(context.Background(), src)
	if err != nil {
		t.Fatalf("interpreted run failed: %v", err)
	}
	interpOut, interpExit = istdout.String(), exit

	chunk, err := bytecode.CompileSource(src)
	if err != nil {
		t.Fatalf("CompileSource() error = %v", err)
	}
	vsess, vstdout, _ := newTestSession(t)
	exit, err = vsess.RunChunk(context.Background(), chunk)
	if err != nil {
		t.Fatalf("compiled run failed: %v", err)
	}
	vmOut, vmExit = vstdout.String(), exit
	return interpOut, interpExit, vmOut, vmExit
}

func TestInterpMatchesVM(t *testing.T) {
	sources := []string{
		"echo hello world",
		"x = alpha\necho $x $x",
		"greeting = hi\nname = there\necho $greeting $name",
		"if one == one\necho same\nelse\necho differ\nend",
		"if one != one\necho same\nelse\necho differ\nend",
		"x = a\nif $x == a\necho matched $x\nend",
		"echo first\necho second\necho third",
		"upper shout\nlower QUIET",
	}
	for _, src := range sources {
		iOut, iExit, vOut, vExit := runBothModes(t, src)
		if iOut != vOut {
			t.Errorf("source %q:\ninterp: %q\nvm:     %q", src, iOut, vOut)
		}
		if iExit != vExit {
			t.Errorf("source %q: interp exit %d, vm exit %d", src, iExit, vExit)
		}
	}
}

func TestInterpUndefinedVariable(t *testing.T) {
	sess, _, _ := newTestSession(t)
	_, err := sess.RunScript(context.Background(), "echo $missing")

	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error = %v, want *EvalError", err)
	}
	if !strings.Contains(evalErr.Reason, "undefined variable $missing") {
		t.Errorf("Reason = %q", evalErr.Reason)
	}
}

func TestInterpEnvFallsBackToEmpty(t *testing.T) {
	t.Setenv("LUW_INTERP_UNSET", "")
	sess, stdout, _ := newTestSession(t)

	_, err := sess.RunScript(context.Background(), "echo start $env:LUW_INTERP_UNSET end")
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if got := stdout.String(); got != "start  end\n" {
		t.Errorf("stdout = %q, want %q", got, "start  end\n")
	}
}

func TestInterpExitRegisterTracksLastCommand(t *testing.T) {
	sess, _, _ := newTestSession(t)

	// A builtin that ran and failed is data; the script continues.
	exit, err := sess.RunScript(context.Background(), "sleep notanumber\necho recovered")
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if exit != 0 {
		t.Errorf("exit = %d, want 0 after recovering command", exit)
	}

	exit, err = sess.RunScript(context.Background(), "echo fine\nsleep notanumber")
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if exit != 1 {
		t.Errorf("exit = %d, want 1 from trailing failed command", exit)
	}
}

func TestInterpUnknownCommandIsFatal(t *testing.T) {
	sess, stdout, _ := newTestSession(t)

	_, err := sess.RunScript(context.Background(), "nosuchcmd\necho after")

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("error = %v, want *DispatchError", err)
	}
	if dispatchErr.Kind != ErrUnknownCommand {
		t.Errorf("Kind = %d, want ErrUnknownCommand", dispatchErr.Kind)
	}
	if strings.Contains(stdout.String(), "after") {
		t.Error("statements after the failed dispatch still ran")
	}
}

func TestInterpDirective(t *testing.T) {
	sess, _, _ := newTestSession(t)

	if _, err := sess.RunScript(context.Background(), "!SuppressDebug"); err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if !sess.Dispatcher.Gate.Suppressed() {
		t.Error("debug gate not suppressed")
	}
	if _, err := sess.RunScript(context.Background(), "!ResumeDebug"); err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if sess.Dispatcher.Gate.Suppressed() {
		t.Error("debug gate still suppressed")
	}
}

func TestRunLineExpandsAliases(t *testing.T) {
	sess, stdout, _ := newTestSession(t)
	sess.Dispatcher.Aliases.Define("hello", "echo greetings")

	if err := sess.RunLine(context.Background(), "hello world"); err != nil {
		t.Fatalf("RunLine() error = %v", err)
	}
	if got := stdout.String(); got != "greetings world\n" {
		t.Errorf("stdout = %q, want %q", got, "greetings world\n")
	}
}

func TestInterpClusterMatchesVM(t *testing.T) {
	src := "!mt echo A & echo B"
	iOut, iExit, vOut, vExit := runBothModes(t, src)
	want := "[worker 0] A\n[worker 1] B\n"
	if iOut != want {
		t.Errorf("interp stdout = %q, want %q", iOut, want)
	}
	if vOut != want {
		t.Errorf("vm stdout = %q, want %q", vOut, want)
	}
	if iExit != 0 || vExit != 0 {
		t.Errorf("exits = %d/%d, want 0/0", iExit, vExit)
	}
}
