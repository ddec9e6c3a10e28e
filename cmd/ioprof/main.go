// Command ioprof is the CLI front end for the block-device I/O profiling
// pipeline: trace captures a live blktrace session into an archive, post
// runs the ingestion-and-aggregation pipeline over an archive and prints a
// report, live does the same thing continuously against a live device.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bjdonie/ioprof"
	internaltrace "github.com/bjdonie/ioprof/internal/trace"
)

var (
	debug      = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
	ctracefile = flag.String("ctracefile", "", "path to store a chrome trace event file at (load in chrome://tracing)")
)

// exitCode maps an *ioprof.Error's Kind to the process exit code: 1
// prerequisite missing, 9 archive missing/corrupt or invalid geometry, 3
// parse error, 2 validation, and 1 for an error carrying no Kind. Tracer
// failures and archive packaging failures are raised as
// KindPrereqMissing, so they exit with 1; codes 7 and 8 are never used.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var kind ioprof.Kind
	found := false
	for _, k := range []ioprof.Kind{
		ioprof.KindPrereqMissing,
		ioprof.KindInputCorrupt,
		ioprof.KindParseError,
		ioprof.KindValidationError,
		ioprof.KindGeometryInvalid,
	} {
		if ioprof.Is(err, k) {
			kind, found = k, true
			break
		}
	}
	if !found {
		return 1
	}
	switch kind {
	case ioprof.KindPrereqMissing:
		return 1
	case ioprof.KindInputCorrupt:
		return 9
	case ioprof.KindParseError:
		return 3
	case ioprof.KindValidationError:
		return 2
	case ioprof.KindGeometryInvalid:
		return 9
	default:
		return 1
	}
}

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	if *ctracefile != "" {
		f, err := os.Create(*ctracefile)
		if err != nil {
			return err
		}
		internaltrace.Sink(f)
	}

	verbs := map[string]cmd{
		"trace": {cmdtrace},
		"post":  {cmdpost},
		"live":  {cmdlive},
	}

	args := flag.Args()
	verb := "post"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintln(os.Stderr, "ioprof [-flags] <trace|post|live> [-flags] <args>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "To get help on any command, use ioprof <command> -help.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "\ttrace - capture a blktrace session into an archive")
		fmt.Fprintln(os.Stderr, "\tpost  - run the pipeline over an archive and print a report")
		fmt.Fprintln(os.Stderr, "\tlive  - run the pipeline continuously against a live device")
		os.Exit(2)
	}

	ctx, canc := ioprof.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintln(os.Stderr, "syntax: ioprof <trace|post|live> [options]")
		os.Exit(2)
	}

	if err := v.fn(ctx, args); err != nil {
		code := exitCode(err)
		var msg string
		if *debug {
			msg = fmt.Sprintf("%s: %+v", verb, err)
		} else {
			msg = fmt.Sprintf("%s: %v", verb, err)
		}
		fmt.Fprintln(os.Stderr, msg)
		if atErr := ioprof.RunAtExit(); atErr != nil {
			fmt.Fprintf(os.Stderr, "at-exit: %v\n", atErr)
		}
		os.Exit(code)
	}

	return ioprof.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
