package cli

import (
	"memoire/internal/config"
	"memoire/internal/llm"
	"memoire/internal/store"
	"memoire/internal/tokenizer"
)

// Function variables for dependency injection in tests.
// Default values are the real implementations; tests may temporarily swap them.
var (
	configWriteDefault = config.WriteDefault
	configLoad         = config.Load
	storeOpen          = store.Open
	newOracle          = llm.NewOracle
	newTokenizer       = tokenizer.NewTikToken
	getSecret          = llm.EnvSecrets
)
