package grammar

import (
	"os"

	"github.com/alecthomas/participle/v2"
)

var irParser = participle.MustBuild[File](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	// Lookahead disambiguates keyword-led instruction forms from
	// assignments, and mem(/addr( from plain names.
	participle.UseLookahead(4),
)

// ParseSource parses the textual SSA IR format.
func ParseSource(filename, source string) (*File, error) {
	return irParser.ParseString(filename, source)
}

// ParseFile reads and parses an IR file.
func ParseFile(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSource(path, string(source))
}
