package schedule

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Schedule text is a list of "at <tick> <activity>" lines; '#' starts a
// comment.
//
//	at 10    idle
//	at 2000  work
//	at 9000  meet
//	at 11000 idle
//	at 12000 rest
type scheduleAST struct {
	Entries []*entryAST `parser:"@@*"`
}

type entryAST struct {
	Start    uint64 `parser:"\"at\" @Int"`
	Activity string `parser:"@Ident"`
}

var scheduleLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
})

var parser = participle.MustBuild[scheduleAST](
	participle.Lexer(scheduleLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse builds a schedule from its text form. name is used in errors.
func Parse(name, text string, dayTicks uint64) (*Schedule, error) {
	ast, err := parser.ParseString(name, text)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	b := NewBuilder(dayTicks)
	for _, e := range ast.Entries {
		b.ChangeAt(e.Start, Activity(e.Activity))
	}
	s, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	return s, nil
}
