package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Numeric literals; floats before integers so the dot binds
		{"Float", `-?[0-9]+\.[0-9]+`, nil},
		{"Integer", `-?[0-9]+`, nil},

		// Identifiers; '#' carries SSA tags, '$' carries mangling
		{"Ident", `[a-zA-Z_$][a-zA-Z0-9_$#]*`, nil},

		// Punctuation
		{"Punct", `[{}()\[\],;:@=%*+]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
