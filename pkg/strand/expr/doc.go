/*
Package expr implements the restricted condition grammar used by
conditional edges.

Expressions are side-effect free and evaluate to a boolean against a state
mapping. The grammar is fixed; there is no function call surface and no
escape into a general-purpose evaluator.

	<expr>       := <or>
	<or>         := <and> { ('or' | '||') <and> }
	<and>        := <not> { ('and' | '&&') <not> }
	<not>        := ('not' | '!') <not> | <comparison>
	<comparison> := <primary> [ <op> <primary> ]
	<op>         := '==' | '!=' | '<' | '<=' | '>' | '>=' | 'in' | 'contains'
	<primary>    := literal | path | '(' <expr> ')'
	literal      := 'str' | "str" | number | true | false | null
	path         := ident { '.' ident | '[' index ']' }

Paths resolve dotted field access into the state map, descending through
nested maps and indexing into lists:

	status == "approved"
	review.score >= 0.8 and not draft
	verdict in ["pass", "borderline"]
	items[0].name != ""

Parse returns a reusable Expr so syntax can be checked statically (the
linter does this) without evaluating anything. A bare path or literal is
tested for truthiness: nil, false, empty string, zero numbers, and empty
lists/maps are false.
*/
package expr
