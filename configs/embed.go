// Package configs embeds the commented configuration template written by
// `foldrank config init`.
package configs

import _ "embed"

// ConfigTemplate documents every setting with its default value.
//
//go:embed foldrank.example.yaml
var ConfigTemplate string
