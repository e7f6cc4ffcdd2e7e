package classify

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellCall is one simple command extracted from a shell line.
type ShellCall struct {
	Name       string   // command name (e.g. "npm")
	Args       []string // arguments after the name
	Subcommand string   // first non-flag argument (e.g. "install")
}

// ParseShellCommand parses a shell command string into its simple commands,
// walking through pipelines, lists, and subshells.
func ParseShellCommand(command string) ([]ShellCall, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var calls []ShellCall
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if c := extractCall(call); c != nil {
				calls = append(calls, *c)
			}
		}
		return true
	})
	return calls, nil
}

func extractCall(call *syntax.CallExpr) *ShellCall {
	// Env-var prefixes ("FOO=1 npm install") live in call.Assigns; the
	// command itself is always the first word.
	if len(call.Args) == 0 {
		return nil
	}

	c := &ShellCall{Name: wordText(call.Args[0])}
	if c.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		text := wordText(arg)
		c.Args = append(c.Args, text)
		if c.Subcommand == "" && !strings.HasPrefix(text, "-") {
			c.Subcommand = text
		}
	}
	return c
}

// wordText flattens a syntax.Word to plain text. Dynamic parts keep a
// placeholder so they never match a known verb.
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
