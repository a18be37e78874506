package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/steno/internal/errors"
)

// decode converts tool arguments into a request struct. Malformed or
// mistyped arguments are INVALID_REQUEST errors.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequestf("encode arguments: %v", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, errors.NewInvalidRequestf("invalid arguments: %v", err)
	}
	return result, nil
}
