//go:build tools

// Pins the linter version in go.sum so CI and local runs agree.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
)
