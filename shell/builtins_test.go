package shell

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func dispatchOn(t *testing.T, d *Dispatcher, name string, args []string, flags map[string]string) (res struct {
	Stdout   string
	Stderr   string
	ExitCode int
}) {
	t.Helper()
	r, err := d.Dispatch(context.Background(), name, args, flags)
	if err != nil {
		t.Fatalf("Dispatch(%s) error = %v", name, err)
	}
	res.Stdout = r.Stdout
	res.Stderr = r.Stderr
	res.ExitCode = r.ExitCode
	return res
}

func dispatchBuiltin(t *testing.T, name string, args []string, flags map[string]string) (res struct {
	Stdout   string
	Stderr   string
	ExitCode int
}) {
	t.Helper()
	sess, _, _ := newTestSession(t)
	return dispatchOn(t, sess.Dispatcher, name, args, flags)
}

func TestBuiltinSetGet(t *testing.T) {
	sess, _, _ := newTestSession(t)
	d := sess.Dispatcher

	res := dispatchOn(t, d, "set", []string{"LUW_TEST_VAR=hello"}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("set exit = %d, stderr = %q", res.ExitCode, res.Stderr)
	}

	res = dispatchOn(t, d, "get", []string{"LUW_TEST_VAR"}, nil)
	if res.Stdout != "hello" {
		t.Errorf("get = %q, want hello", res.Stdout)
	}

	// Prefixed spellings resolve to the same variable.
	res = dispatchOn(t, d, "get", []string{"$env:LUW_TEST_VAR"}, nil)
	if res.Stdout != "hello" {
		t.Errorf("get $env: form = %q, want hello", res.Stdout)
	}

	// set writes the session overlay, never the process environment.
	if got := os.Getenv("LUW_TEST_VAR"); got != "" {
		t.Errorf("process env = %q, want empty", got)
	}
}

func TestBuiltinSetQuotedValue(t *testing.T) {
	sess, _, _ := newTestSession(t)
	dispatchOn(t, sess.Dispatcher, "set", []string{`LUW_TEST_QUOTED="a b"`}, nil)
	if got := sess.Ctx.Getenv("LUW_TEST_QUOTED"); got != "a b" {
		t.Errorf("value = %q, want %q", got, "a b")
	}
}

func TestBuiltinSetUsage(t *testing.T) {
	res := dispatchBuiltin(t, "set", nil, nil)
	if res.ExitCode == 0 {
		t.Error("set with no args should fail")
	}
}

func TestBuiltinEnvListsOverlay(t *testing.T) {
	sess, _, _ := newTestSession(t)
	d := sess.Dispatcher
	dispatchOn(t, d, "set", []string{"LUW_OVERLAY_VAR=visible"}, nil)

	res := dispatchOn(t, d, "env", nil, nil)
	if !strings.Contains(res.Stdout, "LUW_OVERLAY_VAR=visible") {
		t.Error("env listing missing overlay variable")
	}
}

func TestBuiltinTextTransforms(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"reverse", []string{"abc"}, "cba"},
		{"reverse", []string{"ab", "cd"}, "dc ba"},
		{"upper", []string{"hello"}, "HELLO"},
		{"lower", []string{"HeLLo"}, "hello"},
	}
	for _, tt := range tests {
		res := dispatchBuiltin(t, tt.name, tt.args, nil)
		if res.Stdout != tt.want {
			t.Errorf("%s(%v) = %q, want %q", tt.name, tt.args, res.Stdout, tt.want)
		}
	}
}

func TestBuiltinHeadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	var sb strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&sb, "line%02d\n", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	res := dispatchBuiltin(t, "head", []string{path}, map[string]string{"count": "3"})
	if got := strings.Split(res.Stdout, "\n"); len(got) != 3 || got[0] != "line01" {
		t.Errorf("head = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "tail", []string{path}, map[string]string{"count": "2"})
	if got := strings.Split(res.Stdout, "\n"); len(got) != 2 || got[1] != "line20" {
		t.Errorf("tail = %q", res.Stdout)
	}

	// Default count is 10.
	res = dispatchBuiltin(t, "head", []string{path}, nil)
	if got := strings.Split(res.Stdout, "\n"); len(got) != 10 {
		t.Errorf("head default = %d lines, want 10", len(got))
	}
}

func TestBuiltinHeadMissingFile(t *testing.T) {
	res := dispatchBuiltin(t, "head", []string{filepath.Join(t.TempDir(), "nope")}, nil)
	if res.ExitCode == 0 {
		t.Error("head on missing file should fail")
	}
}

func TestBuiltinWc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("one two\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := dispatchBuiltin(t, "wc", []string{path}, nil)
	if !strings.HasPrefix(res.Stdout, "2 3 14 ") {
		t.Errorf("wc = %q, want prefix %q", res.Stdout, "2 3 14 ")
	}
}

func TestBuiltinLs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := dispatchBuiltin(t, "ls", []string{dir}, nil)
	if res.Stdout != "a.txt\nb.txt" {
		t.Errorf("ls = %q, want sorted names", res.Stdout)
	}
}

func TestBuiltinCat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello file"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := dispatchBuiltin(t, "cat", []string{path}, nil)
	if res.Stdout != "hello file" {
		t.Errorf("cat = %q", res.Stdout)
	}

	// A missing file reports inline without aborting the rest.
	res = dispatchBuiltin(t, "cat", []string{filepath.Join(dir, "nope"), path}, nil)
	if !strings.Contains(res.Stdout, "cat failed (") || !strings.Contains(res.Stdout, "hello file") {
		t.Errorf("cat mixed = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "cat", nil, nil)
	if res.ExitCode == 0 {
		t.Error("cat with no args should fail")
	}
}

func TestBuiltinGrep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("alpha one\nbeta two\nalpha three\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := dispatchBuiltin(t, "grep", nil, map[string]string{"pattern": "^alpha", "file": path})
	if res.Stdout != "alpha one\nalpha three" {
		t.Errorf("grep = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "grep", nil, map[string]string{"pattern": "gamma", "file": path})
	if res.Stdout != "no matches" {
		t.Errorf("grep miss = %q, want no matches", res.Stdout)
	}

	res = dispatchBuiltin(t, "grep", nil, map[string]string{"pattern": "x"})
	if res.ExitCode == 0 {
		t.Error("grep without --file should fail")
	}

	// Positional pattern and file also work.
	res = dispatchBuiltin(t, "grep", []string{"beta", path}, nil)
	if res.Stdout != "beta two" {
		t.Errorf("grep positional = %q", res.Stdout)
	}
}

func TestBuiltinFind(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{filepath.Join(dir, "note.txt"), filepath.Join(sub, "other_note.md"), filepath.Join(sub, "skip.go")} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res := dispatchBuiltin(t, "find", []string{dir}, map[string]string{"name": "note"})
	if !strings.Contains(res.Stdout, "note.txt") || !strings.Contains(res.Stdout, "other_note.md") {
		t.Errorf("find = %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "skip.go") {
		t.Errorf("find matched an unrelated file: %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "find", []string{dir}, map[string]string{"name": "zzz"})
	if res.Stdout != "no matches" {
		t.Errorf("find miss = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "find", []string{dir}, nil)
	if res.ExitCode == 0 {
		t.Error("find without --name should fail")
	}
}

func TestBuiltinCpMv(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	copied := filepath.Join(dir, "copy.txt")
	res := dispatchBuiltin(t, "cp", nil, map[string]string{"src": src, "dst": copied})
	if res.ExitCode != 0 {
		t.Fatalf("cp failed: %q", res.Stderr)
	}
	if data, _ := os.ReadFile(copied); string(data) != "payload" {
		t.Errorf("copied content = %q", data)
	}

	moved := filepath.Join(dir, "moved.txt")
	res = dispatchBuiltin(t, "mv", []string{copied, moved}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("mv failed: %q", res.Stderr)
	}
	if _, err := os.Stat(copied); !os.IsNotExist(err) {
		t.Error("mv left the source behind")
	}
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("moved file missing: %v", err)
	}

	res = dispatchBuiltin(t, "cp", []string{src}, nil)
	if res.ExitCode == 0 {
		t.Error("cp without a destination should fail")
	}
}

func TestBuiltinRm(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	res := dispatchBuiltin(t, "rm", []string{file}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("rm failed: %q", res.Stderr)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("file survived rm")
	}

	tree := filepath.Join(dir, "tree", "nested")
	if err := os.MkdirAll(tree, 0o755); err != nil {
		t.Fatal(err)
	}

	// A directory needs the recursive flag.
	res = dispatchBuiltin(t, "rm", []string{filepath.Join(dir, "tree")}, nil)
	if res.ExitCode == 0 {
		t.Error("rm on a directory without --r should fail")
	}
	res = dispatchBuiltin(t, "rm", []string{filepath.Join(dir, "tree")}, map[string]string{"r": "1"})
	if res.ExitCode != 0 {
		t.Fatalf("rm --r failed: %q", res.Stderr)
	}
	if _, err := os.Stat(tree); !os.IsNotExist(err) {
		t.Error("tree survived recursive rm")
	}
}

func TestBuiltinMkdirTouchStat(t *testing.T) {
	dir := t.TempDir()
	made := filepath.Join(dir, "a", "b")
	res := dispatchBuiltin(t, "mkdir", []string{made}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("mkdir failed: %q", res.Stderr)
	}
	if info, err := os.Stat(made); err != nil || !info.IsDir() {
		t.Fatalf("mkdir result: %v", err)
	}

	file := filepath.Join(made, "touched.txt")
	res = dispatchBuiltin(t, "touch", []string{file}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("touch failed: %q", res.Stderr)
	}

	res = dispatchBuiltin(t, "stat", []string{file}, nil)
	if res.ExitCode != 0 {
		t.Fatalf("stat failed: %q", res.Stderr)
	}
	for _, want := range []string{"size=0 bytes", "mode=", "mtime="} {
		if !strings.Contains(res.Stdout, want) {
			t.Errorf("stat = %q, missing %q", res.Stdout, want)
		}
	}

	// info is the same command under another name.
	info := dispatchBuiltin(t, "info", []string{file}, nil)
	if info.ExitCode != 0 {
		t.Errorf("info failed: %q", info.Stderr)
	}
}

func TestBuiltinRand(t *testing.T) {
	for i := 0; i < 20; i++ {
		res := dispatchBuiltin(t, "rand", nil, map[string]string{"start": "5", "end": "7"})
		n, err := strconv.Atoi(res.Stdout)
		if err != nil || n < 5 || n > 7 {
			t.Fatalf("rand = %q, want 5..7", res.Stdout)
		}
	}

	res := dispatchBuiltin(t, "rand", nil, map[string]string{"start": "9", "end": "3"})
	if res.ExitCode == 0 {
		t.Error("rand with an empty range should fail")
	}
}

func TestBuiltinBase64(t *testing.T) {
	res := dispatchBuiltin(t, "b64e", []string{"hello world"}, nil)
	want := base64.StdEncoding.EncodeToString([]byte("hello world"))
	if res.Stdout != want {
		t.Errorf("b64e = %q, want %q", res.Stdout, want)
	}

	res = dispatchBuiltin(t, "b64d", []string{want}, nil)
	if res.Stdout != "hello world" {
		t.Errorf("b64d = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "b64d", []string{"not!!base64"}, nil)
	if res.ExitCode == 0 {
		t.Error("b64d on invalid input should fail")
	}
}

func TestBuiltinSystemQueries(t *testing.T) {
	for _, name := range []string{"date", "uname", "hostname", "whoami", "sysinfo"} {
		res := dispatchBuiltin(t, name, nil, nil)
		if res.ExitCode != 0 {
			t.Errorf("%s exit = %d, stderr = %q", name, res.ExitCode, res.Stderr)
		}
	}
}

func TestBuiltinHelp(t *testing.T) {
	res := dispatchBuiltin(t, "help", nil, nil)
	if !strings.Contains(res.Stdout, "echo") || !strings.Contains(res.Stdout, "alias") {
		t.Errorf("help listing missing builtins:\n%s", res.Stdout)
	}

	res = dispatchBuiltin(t, "help", []string{"cd"}, nil)
	if !strings.Contains(res.Stdout, "change directory") {
		t.Errorf("help cd = %q", res.Stdout)
	}

	res = dispatchBuiltin(t, "help", []string{"nope"}, nil)
	if !strings.Contains(res.Stdout, "No such command") {
		t.Errorf("help nope = %q", res.Stdout)
	}
}

func TestBuiltinAliasLifecycle(t *testing.T) {
	sess, _, _ := newTestSession(t)
	d := sess.Dispatcher
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "aliases", nil, nil)
	if err != nil {
		t.Fatalf("Dispatch(aliases) error = %v", err)
	}
	if res.Stdout != "no aliases" {
		t.Errorf("aliases = %q, want no aliases", res.Stdout)
	}

	if _, err := d.Dispatch(ctx, "alias", []string{"ll='ls --verbose'"}, nil); err != nil {
		t.Fatalf("Dispatch(alias) error = %v", err)
	}
	if exp, ok := d.Aliases.Lookup("ll"); !ok || exp != "ls --verbose" {
		t.Errorf("alias ll = %q %v, want ls --verbose", exp, ok)
	}

	res, err = d.Dispatch(ctx, "aliases", nil, nil)
	if err != nil {
		t.Fatalf("Dispatch(aliases) error = %v", err)
	}
	if !strings.Contains(res.Stdout, "ll -> ls --verbose") {
		t.Errorf("aliases = %q", res.Stdout)
	}

	if _, err := d.Dispatch(ctx, "unalias", []string{"ll"}, nil); err != nil {
		t.Fatalf("Dispatch(unalias) error = %v", err)
	}
	if _, ok := d.Aliases.Lookup("ll"); ok {
		t.Error("alias survived unalias")
	}
}

func TestBuiltinCdMkdir(t *testing.T) {
	sess, _, _ := newTestSession(t)
	d := sess.Dispatcher
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(t.TempDir(), "fresh", "nested")
	res := dispatchOn(t, d, "cd", []string{target}, nil)
	if res.ExitCode == 0 {
		t.Error("cd to missing path without --mkdir should fail")
	}

	res = dispatchOn(t, d, "cd", []string{target}, map[string]string{"mkdir": "true"})
	if res.ExitCode != 0 {
		t.Fatalf("cd --mkdir failed: %q", res.Stderr)
	}
	if got := sess.Ctx.Dir(); !strings.HasSuffix(got, "nested") {
		t.Errorf("Dir() = %q, want .../nested", got)
	}

	// cd moves the session context, never the process.
	if wd, _ := os.Getwd(); wd != orig {
		t.Errorf("process wd moved to %q", wd)
	}
}

func TestBuiltinRelativePathsFollowCd(t *testing.T) {
	sess, _, _ := newTestSession(t)
	d := sess.Dispatcher
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "here.txt"), []byte("found"), 0o644); err != nil {
		t.Fatal(err)
	}

	dispatchOn(t, d, "cd", []string{dir}, nil)
	res := dispatchOn(t, d, "cat", []string{"here.txt"}, nil)
	if res.Stdout != "found" {
		t.Errorf("cat after cd = %q, want found", res.Stdout)
	}
}
