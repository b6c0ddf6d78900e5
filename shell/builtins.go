package shell

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luwshell/luw/pkg/bytecode"
)

func ok(stdout string) bytecode.Result {
	return bytecode.Result{Stdout: stdout}
}

func fail(format string, args ...any) bytecode.Result {
	return bytecode.Result{Stderr: fmt.Sprintf(format, args...), ExitCode: 1}
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func flagTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// builtinTable builds the fixed builtin registry.
func builtinTable() map[string]*Builtin {
	table := map[string]*Builtin{}
	add := func(name, summary string, run func(ctx context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result) {
		table[name] = &Builtin{Name: name, Summary: summary, Run: run}
	}

	add("cd", "cd <path> - change directory (supports --mkdir/--create/--p)", builtinCd)
	add("pwd", "pwd - print current directory", builtinPwd)
	add("echo", "echo <text> - print text", builtinEcho)
	add("print", "print <text> - same as echo", builtinEcho)
	add("ls", "ls [path] - list directory", builtinLs)
	add("cat", "cat <file>... - print file contents", builtinCat)
	add("env", "env - list environment variables", builtinEnv)
	add("set", "set VAR=VALUE - set environment variable", builtinSet)
	add("get", "get VAR - get environment variable", builtinGet)
	add("sleep", "sleep <seconds> - pause", builtinSleep)
	add("reverse", "reverse <text> - reverse characters", builtinReverse)
	add("upper", "upper <text> - uppercase text", builtinUpper)
	add("lower", "lower <text> - lowercase text", builtinLower)
	add("head", "head <file> [--count n] - first lines of a file", builtinHead)
	add("tail", "tail <file> [--count n] - last lines of a file", builtinTail)
	add("wc", "wc <file> - line, word and byte counts", builtinWc)
	add("grep", "grep --pattern <regex> --file <file> - search a file", builtinGrep)
	add("find", "find [path] --name <pattern> - find files by name", builtinFind)
	add("cp", "cp <src> <dst> - copy a file", builtinCp)
	add("mv", "mv <src> <dst> - move or rename", builtinMv)
	add("rm", "rm <path> [--r 1] - remove a file or tree", builtinRm)
	add("mkdir", "mkdir <path> - create a directory", builtinMkdir)
	add("touch", "touch <path> - create or freshen a file", builtinTouch)
	add("stat", "stat <path> - file size, mode and mtime", builtinStat)
	add("info", "info <path> - same as stat", builtinStat)
	add("rand", "rand [--start a] [--end b] - random integer", builtinRand)
	add("b64e", "b64e <text> - base64 encode", builtinB64Encode)
	add("b64d", "b64d <b64> - base64 decode", builtinB64Decode)
	add("date", "date - current date and time", builtinDate)
	add("uname", "uname - system identification", builtinUname)
	add("hostname", "hostname - host name", builtinHostname)
	add("whoami", "whoami - current user", builtinWhoami)
	add("sysinfo", "sysinfo - operating system summary", builtinSysinfo)
	add("help", "help [command] - show available commands", builtinHelp)
	add("alias", "alias name='expansion' - define a session alias", builtinAlias)
	add("unalias", "unalias name - remove an alias", builtinUnalias)
	add("aliases", "aliases - list defined aliases", builtinAliases)
	return table
}

func builtinCd(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fail("cd failed: %v", err)
		}
		path = home
	}
	abs := d.Ctx.Resolve(path)

	wantMkdir := flagTruthy(flags["mkdir"]) || flagTruthy(flags["create"]) || flagTruthy(flags["p"])
	if _, err := os.Stat(abs); err != nil {
		if !wantMkdir {
			return fail("cd failed: path not found: %s", abs)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fail("cd failed creating %s: %v", abs, err)
		}
	}
	if err := d.Ctx.Chdir(abs); err != nil {
		return fail("cd failed: %v", err)
	}
	// Report the new directory so interactive sessions see it.
	return ok(d.Ctx.Dir())
}

func builtinPwd(_ context.Context, d *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	return ok(d.Ctx.Dir())
}

func builtinEcho(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	return ok(joinArgs(args))
}

func builtinLs(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		path = "."
	}
	entries, err := os.ReadDir(d.Ctx.Resolve(path))
	if err != nil {
		return fail("ls failed: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return ok(strings.Join(names, "\n"))
}

func builtinCat(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	if len(args) == 0 {
		return fail("usage: cat <file>")
	}
	out := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(d.Ctx.Resolve(path))
		if err != nil {
			out = append(out, fmt.Sprintf("cat failed (%s): %v", path, err))
			continue
		}
		out = append(out, string(data))
	}
	return ok(strings.Join(out, "\n"))
}

func builtinEnv(_ context.Context, d *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	vars := d.Ctx.Environ()
	sort.Strings(vars)
	return ok(strings.Join(vars, "\n"))
}

// stripVarPrefix accepts $env:NAME, $NAME and bare NAME spellings.
func stripVarPrefix(name string) string {
	name = strings.TrimPrefix(name, "$env:")
	return strings.TrimPrefix(name, "$")
}

func builtinSet(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	raw := strings.TrimSpace(joinArgs(args))
	if raw == "" {
		return fail("usage: set VAR=VALUE")
	}
	var name, value string
	if i := strings.Index(raw, "="); i >= 0 {
		name = strings.TrimSpace(raw[:i])
		value = strings.TrimSpace(raw[i+1:])
	} else {
		fields := strings.Fields(raw)
		if len(fields) < 2 {
			return fail("usage: set VAR=VALUE")
		}
		name = fields[0]
		value = strings.Join(fields[1:], " ")
	}
	name = stripVarPrefix(name)
	if len(value) >= 2 && value[0] == value[len(value)-1] && (value[0] == '"' || value[0] == '\'') {
		value = value[1 : len(value)-1]
	}
	d.Ctx.Setenv(name, value)
	return ok("")
}

func builtinGet(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	name := strings.TrimSpace(joinArgs(args))
	if name == "" {
		return ok("")
	}
	return ok(d.Ctx.Getenv(stripVarPrefix(name)))
}

func builtinSleep(ctx context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	raw := strings.TrimSpace(joinArgs(args))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return fail("sleep: invalid duration %q", raw)
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return ok("")
	case <-ctx.Done():
		return fail("sleep: %v", ctx.Err())
	}
}

func builtinReverse(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	runes := []rune(joinArgs(args))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return ok(string(runes))
}

func builtinUpper(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	return ok(strings.ToUpper(joinArgs(args)))
}

func builtinLower(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	return ok(strings.ToLower(joinArgs(args)))
}

func lineCount(flags map[string]string) int {
	for _, key := range []string{"count", "n", "lines"} {
		if v, ok := flags[key]; ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 10
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func builtinHead(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: head <file> [--count n]")
	}
	lines, err := readLines(d.Ctx.Resolve(path))
	if err != nil {
		return fail("head failed: %v", err)
	}
	n := lineCount(flags)
	if n < len(lines) {
		lines = lines[:n]
	}
	return ok(strings.Join(lines, "\n"))
}

func builtinTail(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: tail <file> [--count n]")
	}
	lines, err := readLines(d.Ctx.Resolve(path))
	if err != nil {
		return fail("tail failed: %v", err)
	}
	n := lineCount(flags)
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return ok(strings.Join(lines, "\n"))
}

func builtinWc(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: wc <file>")
	}
	data, err := os.ReadFile(d.Ctx.Resolve(path))
	if err != nil {
		return fail("wc failed: %v", err)
	}
	text := string(data)
	lines := strings.Count(text, "\n")
	words := len(strings.Fields(text))
	return ok(fmt.Sprintf("%d %d %d %s", lines, words, len(data), path))
}

func builtinGrep(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	pattern := flags["pattern"]
	file := flags["file"]
	if pattern == "" && len(args) > 0 {
		pattern = args[0]
		if file == "" && len(args) > 1 {
			file = args[1]
		}
	}
	if pattern == "" || file == "" {
		return fail("usage: grep --pattern <regex> --file <file>")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail("grep failed: %v", err)
	}
	lines, err := readLines(d.Ctx.Resolve(file))
	if err != nil {
		return fail("grep failed: %v", err)
	}
	var matches []string
	for _, line := range lines {
		if re.MatchString(line) {
			matches = append(matches, strings.TrimSpace(line))
		}
	}
	if len(matches) == 0 {
		return ok("no matches")
	}
	return ok(strings.Join(matches, "\n"))
}

func builtinFind(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	root := joinArgs(args)
	if root == "" {
		root = "."
	}
	name := flags["name"]
	if name == "" {
		return fail("usage: find <path> --name <pattern>")
	}
	var matches []string
	walkErr := filepath.WalkDir(d.Ctx.Resolve(root), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.Contains(entry.Name(), name) {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return fail("find failed: %v", walkErr)
	}
	if len(matches) == 0 {
		return ok("no matches")
	}
	return ok(strings.Join(matches, "\n"))
}

// srcDst reads the source and destination for cp and mv, accepting
// --src/--dst flags or two positional arguments.
func srcDst(args []string, flags map[string]string) (string, string, bool) {
	src := flags["src"]
	dst := flags["dst"]
	if dst == "" {
		dst = flags["to"]
	}
	if src == "" && len(args) > 0 {
		src = args[0]
		if dst == "" && len(args) > 1 {
			dst = args[1]
		}
	}
	return src, dst, src != "" && dst != ""
}

func builtinCp(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	src, dst, good := srcDst(args, flags)
	if !good {
		return fail("usage: cp --src <source> --dst <dest>  OR  cp <src> <dst>")
	}
	if err := copyFile(d.Ctx.Resolve(src), d.Ctx.Resolve(dst)); err != nil {
		return fail("cp failed: %v", err)
	}
	return ok("")
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if target, statErr := os.Stat(dst); statErr == nil && target.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func builtinMv(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	src, dst, good := srcDst(args, flags)
	if !good {
		return fail("usage: mv --src <source> --dst <dest>  OR  mv <src> <dst>")
	}
	from := d.Ctx.Resolve(src)
	to := d.Ctx.Resolve(dst)
	if target, err := os.Stat(to); err == nil && target.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}
	if err := os.Rename(from, to); err != nil {
		return fail("mv failed: %v", err)
	}
	return ok("")
}

func builtinRm(_ context.Context, d *Dispatcher, args []string, flags map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: rm <path> [--r 1]")
	}
	abs := d.Ctx.Resolve(path)
	recursive := flagTruthy(flags["r"]) || flagTruthy(flags["recursive"])
	info, err := os.Stat(abs)
	if err != nil {
		return fail("rm failed: %v", err)
	}
	if info.IsDir() && recursive {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return fail("rm failed: %v", err)
	}
	return ok("")
}

func builtinMkdir(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: mkdir <path>")
	}
	if err := os.MkdirAll(d.Ctx.Resolve(path), 0o755); err != nil {
		return fail("mkdir failed: %v", err)
	}
	return ok("")
}

func builtinTouch(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: touch <path>")
	}
	abs := d.Ctx.Resolve(path)
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fail("touch failed: %v", err)
	}
	f.Close()
	now := time.Now()
	if err := os.Chtimes(abs, now, now); err != nil {
		return fail("touch failed: %v", err)
	}
	return ok("")
}

func builtinStat(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	path := joinArgs(args)
	if path == "" {
		return fail("usage: stat <path>")
	}
	info, err := os.Stat(d.Ctx.Resolve(path))
	if err != nil {
		return fail("stat failed: %v", err)
	}
	return ok(fmt.Sprintf("%s\nsize=%d bytes\nmode=%s\nmtime=%s",
		path, info.Size(), info.Mode(), info.ModTime().Format("2006-01-02T15:04:05")))
}

func builtinRand(_ context.Context, _ *Dispatcher, _ []string, flags map[string]string) bytecode.Result {
	start, end := 0, 100
	if v, found := flags["start"]; found {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail("rand: invalid --start %q", v)
		}
		start = n
	}
	if v, found := flags["end"]; found {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail("rand: invalid --end %q", v)
		}
		end = n
	}
	if end < start {
		return fail("rand: empty range %d..%d", start, end)
	}
	return ok(strconv.Itoa(start + rand.Intn(end-start+1)))
}

func builtinB64Encode(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	text := joinArgs(args)
	if text == "" {
		return fail("usage: b64e <text>")
	}
	return ok(base64.StdEncoding.EncodeToString([]byte(text)))
}

func builtinB64Decode(_ context.Context, _ *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	text := joinArgs(args)
	if text == "" {
		return fail("usage: b64d <b64>")
	}
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fail("b64d failed: %v", err)
	}
	return ok(string(decoded))
}

func builtinDate(_ context.Context, _ *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	return ok(time.Now().Format("2006-01-02 15:04:05"))
}

func builtinUname(_ context.Context, _ *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	host, _ := os.Hostname()
	return ok(fmt.Sprintf("%s %s %s", runtime.GOOS, host, runtime.GOARCH))
}

func builtinHostname(_ context.Context, d *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	if host, err := os.Hostname(); err == nil && host != "" {
		return ok(host)
	}
	if host := d.Ctx.Getenv("HOSTNAME"); host != "" {
		return ok(host)
	}
	return ok(d.Ctx.Getenv("COMPUTERNAME"))
}

func builtinWhoami(_ context.Context, d *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return ok(u.Username)
	}
	if name := d.Ctx.Getenv("USERNAME"); name != "" {
		return ok(name)
	}
	return ok(d.Ctx.Getenv("USER"))
}

func builtinSysinfo(_ context.Context, _ *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	return ok(fmt.Sprintf("%s %s (go %s)", runtime.GOOS, runtime.GOARCH, strings.TrimPrefix(runtime.Version(), "go")))
}

func builtinHelp(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	topic := strings.TrimSpace(joinArgs(args))
	if topic == "" {
		var sb strings.Builder
		for _, name := range d.BuiltinNames() {
			fmt.Fprintf(&sb, "%-10s - %s\n", name, d.builtins[name].Summary)
		}
		return ok(strings.TrimRight(sb.String(), "\n"))
	}
	if b, found := d.builtins[topic]; found {
		return ok(topic + "\n" + b.Summary)
	}
	return ok("No such command: " + topic)
}

func builtinAlias(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	raw := strings.TrimSpace(joinArgs(args))
	if raw == "" {
		return ok("usage: alias name='expansion'")
	}
	var name, expansion string
	if i := strings.Index(raw, "="); i >= 0 {
		name = strings.TrimSpace(raw[:i])
		expansion = strings.Trim(strings.TrimSpace(raw[i+1:]), "'\"")
	} else {
		fields := strings.Fields(raw)
		name = fields[0]
		expansion = strings.Join(fields[1:], " ")
	}
	if name == "" || expansion == "" {
		return ok("invalid alias")
	}
	d.Aliases.Define(name, expansion)
	return ok("")
}

func builtinUnalias(_ context.Context, d *Dispatcher, args []string, _ map[string]string) bytecode.Result {
	name := strings.TrimSpace(joinArgs(args))
	if name == "" {
		return ok("usage: unalias name")
	}
	d.Aliases.Remove(name)
	return ok("")
}

func builtinAliases(_ context.Context, d *Dispatcher, _ []string, _ map[string]string) bytecode.Result {
	lines := d.Aliases.List()
	if len(lines) == 0 {
		return ok("no aliases")
	}
	return ok(strings.Join(lines, "\n"))
}
