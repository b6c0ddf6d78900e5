package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/luwshell/luw/config"
	"github.com/luwshell/luw/pkg/bytecode"
	"github.com/luwshell/luw/shell"
)

const clientVersion = "0.3.0"

// Exit codes for failures that are not command results.
const (
	exitCompileFailure = 2
	exitFormatFailure  = 3
)

var (
	scriptFlag = cli.StringFlag{
		Name:  "script",
		Usage: "run a LUW script file and exit",
	}
	compileFlag = cli.StringFlag{
		Name:  "compile",
		Usage: "compile a LUW script to a .le binary",
	}
	binaryFlag = cli.StringFlag{
		Name:  "binary",
		Usage: "run a compiled LUW binary (.le)",
	}
	dumpFlag = cli.StringFlag{
		Name:  "dump",
		Usage: "print a disassembly listing of a .le binary",
	}
	threadCountFlag = cli.IntFlag{
		Name:  "thread-count",
		Usage: "number of concurrent cluster workers",
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "luw"
	app.Usage = "LUW command shell"
	app.Version = clientVersion
	app.Flags = []cli.Flag{
		scriptFlag,
		compileFlag,
		binaryFlag,
		dumpFlag,
		threadCountFlag,
		configFileFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfgPath := cliCtx.String(configFileFlag.Name)
	if cfgPath == "" {
		cfgPath = config.Path()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}
	if n := cliCtx.Int(threadCountFlag.Name); n > 0 {
		cfg.ThreadCount = n
	}

	script := cliCtx.String(scriptFlag.Name)
	compilePath := cliCtx.String(compileFlag.Name)
	binary := cliCtx.String(binaryFlag.Name)
	dump := cliCtx.String(dumpFlag.Name)

	modes := 0
	for _, m := range []string{script, compilePath, binary, dump} {
		if m != "" {
			modes++
		}
	}
	if modes > 1 {
		return cli.NewExitError("choose one of --script, --compile, --binary, --dump", exitCompileFailure)
	}

	switch {
	case script != "":
		return runScript(cfg, script)
	case compilePath != "":
		return compileScript(compilePath)
	case binary != "":
		return runBinary(cfg, binary)
	case dump != "":
		return dumpArtifact(dump)
	default:
		return runREPL(cfg)
	}
}

// newSession builds a session on the process streams with the
// configured scheduler settings.
func newSession(cfg config.Config) *shell.Session {
	sess := shell.NewSession(os.Stdout, os.Stderr, cfg.ThreadCount)
	if cfg.MemberTimeoutSec > 0 {
		sess.Scheduler.MemberTimeout = time.Duration(cfg.MemberTimeoutSec) * time.Second
	}
	return sess
}

// scriptExtensionOK accepts the two script extensions.
func scriptExtensionOK(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".luw", ".latin":
		return true
	}
	return false
}

func runScript(cfg config.Config, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}

	sess := newSession(cfg)
	code, err := sess.RunScript(context.Background(), string(src))
	if err != nil {
		return scriptError(err)
	}
	return exitWith(code)
}

func compileScript(path string) error {
	if !scriptExtensionOK(path) {
		return cli.NewExitError(fmt.Sprintf("not a LUW script (want .luw or .latin): %s", path), exitCompileFailure)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}

	chunk, err := bytecode.CompileSource(string(src))
	if err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}

	base := filepath.Base(path)
	manifest := bytecode.Manifest{
		Name:  base,
		Entry: "main",
		Tool:  "luw/" + clientVersion,
	}
	data, err := bytecode.EncodeArtifact(chunk, manifest)
	if err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}

	out := strings.TrimSuffix(base, filepath.Ext(base)) + ".le"
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return cli.NewExitError(err.Error(), exitCompileFailure)
	}
	fmt.Println(out)
	return nil
}

func runBinary(cfg config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(err.Error(), exitFormatFailure)
	}
	chunk, _, err := bytecode.DecodeArtifact(data)
	if err != nil {
		return cli.NewExitError(err.Error(), exitFormatFailure)
	}

	sess := newSession(cfg)
	code, err := sess.RunChunk(context.Background(), chunk)
	if err != nil {
		return scriptError(err)
	}
	return exitWith(code)
}

func dumpArtifact(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(err.Error(), exitFormatFailure)
	}
	chunk, manifest, err := bytecode.DecodeArtifact(data)
	if err != nil {
		return cli.NewExitError(err.Error(), exitFormatFailure)
	}

	fmt.Printf("; name: %s  entry: %s  tool: %s\n", manifest.Name, manifest.Entry, manifest.Tool)
	fmt.Print(chunk.DisassembleWithName(manifest.Name))
	return nil
}

// scriptError maps execution failures to exit codes: unknown or
// unstartable commands exit 127, other runtime faults exit 1,
// compile-stage errors exit 2.
func scriptError(err error) error {
	var dispatchErr *shell.DispatchError
	if errors.As(err, &dispatchErr) {
		return cli.NewExitError(err.Error(), 127)
	}
	var fault *bytecode.RuntimeFault
	var evalErr *shell.EvalError
	if errors.As(err, &fault) || errors.As(err, &evalErr) {
		return cli.NewExitError(err.Error(), 1)
	}
	return cli.NewExitError(err.Error(), exitCompileFailure)
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return cli.NewExitError("", code)
}
