// Package gqlselection converts GraphQL AST selection sets into selection
// trees. It is the bridge between the transport's request shape and the
// engine's typed selection structure; fragments are expanded inline and
// introspection meta fields are dropped.
package gqlselection

import (
	"strings"

	"github.com/graphql-go/graphql/language/ast"

	"modelql/internal/selection"
)

// FromField builds a selection tree from a resolved field's selection set.
// Fragment spreads resolve against the supplied definitions; unknown spreads
// are skipped rather than failed, matching executor behavior.
func FromField(field *ast.Field, fragments map[string]ast.Definition) *selection.Tree {
	if field == nil || field.SelectionSet == nil {
		return selection.NewTree()
	}
	return fromSelections(field.SelectionSet.Selections, fragments)
}

func fromSelections(selections []ast.Selection, fragments map[string]ast.Definition) *selection.Tree {
	tree := selection.NewTree()
	visit(tree, selections, fragments)
	return tree
}

func visit(tree *selection.Tree, selections []ast.Selection, fragments map[string]ast.Definition) {
	for _, sel := range selections {
		switch f := sel.(type) {
		case *ast.Field:
			if f.Name == nil {
				continue
			}
			name := f.Name.Value
			if strings.HasPrefix(name, "__") {
				continue
			}
			var child *selection.Tree
			if f.SelectionSet != nil {
				child = fromSelections(f.SelectionSet.Selections, fragments)
			}
			tree.Add(name, child)
		case *ast.InlineFragment:
			if f.SelectionSet != nil {
				visit(tree, f.SelectionSet.Selections, fragments)
			}
		case *ast.FragmentSpread:
			if fragments == nil || f.Name == nil {
				continue
			}
			def, ok := fragments[f.Name.Value]
			if !ok {
				continue
			}
			fragment, ok := def.(*ast.FragmentDefinition)
			if !ok || fragment.SelectionSet == nil {
				continue
			}
			visit(tree, fragment.SelectionSet.Selections, fragments)
		}
	}
}
