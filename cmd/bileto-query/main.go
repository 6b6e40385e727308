// Command bileto-query parses a ticket search query and prints its
// canonical form. It can also show the token stream, the condition tree as
// JSON and the PostgreSQL predicate the searcher would run.
//
// Usage:
//
//	bileto-query [-tokens] [-json] [-sql] [-user N] "<query>"
//
// The exit status is 2 when the query is invalid.
package main

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bileto/ticket-search/internal/query"
	"github.com/bileto/ticket-search/internal/tickets"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bileto-query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showTokens := fs.Bool("tokens", false, "print the token stream")
	showJSON := fs.Bool("json", false, "print the condition tree as JSON")
	showSQL := fs.Bool("sql", false, "print the PostgreSQL predicate")
	actor := fs.Int64("user", 0, "id of the user @me refers to")
	fs.Usage = func() {
		fmt.Fprintln(stderr, `usage: bileto-query [-tokens] [-json] [-sql] [-user N] "<query>"`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	raw := fs.Arg(0)

	if *showTokens {
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for tok, err := range query.NewTokenizer(raw).All() {
			if err != nil {
				break
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", tok.Pos, tok.Type, tok)
		}
		w.Flush()
	}

	q, err := query.Parse(raw)
	if err != nil {
		reportError(stderr, raw, err)
		return 2
	}
	fmt.Fprintln(stdout, q.String())

	if *showJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(q); err != nil {
			fmt.Fprintf(stderr, "encoding query: %v\n", err)
			return 1
		}
	}

	if *showSQL {
		pred, err := tickets.Translate(q, *actor)
		if err != nil {
			reportError(stderr, raw, err)
			return 2
		}
		fmt.Fprintln(stdout, pred.SQL)
		for i, arg := range pred.Args {
			if v, ok := arg.(driver.Valuer); ok {
				arg, _ = v.Value()
			}
			fmt.Fprintf(stdout, "$%d = %v\n", i+1, arg)
		}
	}
	return 0
}

// reportError prints err followed by the offending line of raw with a caret
// under the error position.
func reportError(w io.Writer, raw string, err error) {
	fmt.Fprintf(w, "invalid query: %v\n", err)
	pos, ok := query.ErrorPos(err)
	if !ok {
		var qualErr *tickets.QualifierError
		if !errors.As(err, &qualErr) {
			return
		}
		pos = qualErr.Pos
	}
	lines := strings.Split(raw, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return
	}
	fmt.Fprintf(w, "  %s\n  %s^\n", lines[pos.Line-1], strings.Repeat(" ", pos.Column-1))
}
