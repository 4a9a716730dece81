package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	rlua "github.com/fschutt/rlua"
	rerrors "github.com/fschutt/rlua/errors"
)

func main() {
	var (
		expr        = flag.String("e", "", "Expression or statement to execute")
		libsSpec    = flag.String("libs", "all", "Libraries to open (all, or comma list: base,coroutine,table,string,utf8,math,package)")
		trace       = flag.Bool("trace", false, "Include host frames in error tracebacks")
		verbose     = flag.Bool("v", false, "Verbose engine logging")
		interactive = flag.Bool("i", false, "Interactive REPL")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		rlua.SetLogger(logger)
	}

	libs, err := parseLibs(*libsSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	script := flag.Arg(0)
	if *interactive || (script == "" && *expr == "" && term.IsTerminal(int(os.Stdin.Fd()))) {
		if err := runInteractive(libs, *trace); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(script, *expr, libs, *trace, flag.Args()); err != nil {
		printScriptError(os.Stderr, err)
		os.Exit(1)
	}
}

func run(script, expr string, libs rlua.StdLib, trace bool, argv []string) error {
	opts := []rlua.Option{rlua.WithOutput(os.Stdout)}
	if trace {
		opts = append(opts, rlua.WithNativeTrace())
	}

	l, err := rlua.NewWithLibraries(libs, opts...)
	if err != nil {
		return err
	}
	defer l.Close()

	if expr != "" {
		results, err := l.Eval(expr, "=(command line)")
		if err != nil {
			return err
		}
		printResults(os.Stdout, results)
		return nil
	}

	var (
		source string
		name   string
	)
	if script == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		source, name = string(data), "=(stdin)"
	} else {
		data, err := os.ReadFile(script)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		source, name = string(data), "@"+script
	}

	// Script arguments land in the conventional arg table, script
	// name at index 0.
	if err := setArgTable(l, script, argv); err != nil {
		return err
	}

	results, err := l.Exec(source, name)
	if err != nil {
		return err
	}
	printResults(os.Stdout, results)
	return nil
}

func setArgTable(l *rlua.Lua, script string, argv []string) error {
	args, err := l.CreateTable()
	if err != nil {
		return err
	}
	defer args.Release()

	if err := args.Set(rlua.Integer(0), rlua.String(script)); err != nil {
		return err
	}
	rest := argv
	if len(rest) > 0 {
		rest = rest[1:]
	}
	for i, a := range rest {
		if err := args.Set(rlua.Integer(i+1), rlua.String(a)); err != nil {
			return err
		}
	}
	return l.SetGlobal("arg", args)
}

func parseLibs(spec string) (rlua.StdLib, error) {
	if spec == "" || spec == "all" {
		return rlua.LibsDefault, nil
	}
	var libs rlua.StdLib
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "base":
			libs |= rlua.LibBase
		case "coroutine":
			libs |= rlua.LibCoroutine
		case "table":
			libs |= rlua.LibTable
		case "string":
			libs |= rlua.LibString
		case "utf8":
			libs |= rlua.LibUTF8
		case "math":
			libs |= rlua.LibMath
		case "package":
			libs |= rlua.LibPackage
		default:
			return 0, fmt.Errorf("unknown library %q", name)
		}
	}
	return libs, nil
}

func printResults(w io.Writer, results rlua.MultiValue) {
	if len(results) == 0 {
		return
	}
	parts := make([]string, len(results))
	for i, v := range results {
		parts[i] = formatValue(v)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}

func printScriptError(w io.Writer, err error) {
	var se *rerrors.Error
	if errors.As(err, &se) && se.Traceback != "" {
		fmt.Fprintf(w, "Error: %s\n%s\n", se.Detail, se.Traceback)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func formatValue(v rlua.Value) string {
	switch vv := v.(type) {
	case rlua.Nil:
		return "nil"
	case rlua.Boolean:
		return strconv.FormatBool(bool(vv))
	case rlua.Integer:
		return strconv.FormatInt(int64(vv), 10)
	case rlua.Number:
		return strconv.FormatFloat(float64(vv), 'g', 14, 64)
	case rlua.String:
		return string(vv)
	case rlua.ErrorValue:
		return "error: " + vv.Err.Error()
	default:
		return "<" + v.TypeName() + ">"
	}
}
