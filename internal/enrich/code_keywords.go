package enrich

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
)

// declNodeTypes lists the tree-sitter node types that name a top-level
// declaration, per language — grounded on the Aman-CERP-amanmcp chunker's
// LanguageConfig field groupings (function/method/type/const/var).
var declNodeTypes = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_spec":            true,
	},
	"javascript": {
		"function_declaration": true,
		"class_declaration":    true,
	},
}

var tsLanguages = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"javascript": javascript.GetLanguage(),
}

// CodeKeywords opportunistically extracts top-level declaration names from
// source code as extra keyword material, when a tree-sitter grammar is
// available for lang. Returns nil (never an error) when the language isn't
// supported or parsing fails — this enrichment is never required for
// indexing to succeed.
func CodeKeywords(lang string, source []byte) []string {
	tsLang, ok := tsLanguages[lang]
	if !ok {
		return nil
	}
	declTypes := declNodeTypes[lang]

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	names := make([]string, 0, 8)
	walkDeclarations(tree.RootNode(), source, declTypes, &names)
	return dedupe(names)
}

func walkDeclarations(node *sitter.Node, source []byte, declTypes map[string]bool, names *[]string) {
	if node == nil {
		return
	}
	if declTypes[node.Type()] {
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			*names = append(*names, nameNode.Content(source))
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkDeclarations(node.Child(i), source, declTypes, names)
	}
}
