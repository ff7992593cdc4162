package parser

import (
	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Parser applies user-defined extraction rules to a fetched page and writes
// matches into rec. Rules of a type the parser does not handle are ignored.
type Parser interface {
	Parse(resp *types.Response, rec *types.Record, rules []config.ParseRule) error
}

// joinSeparator is how every multi-valued field is flattened into one cell.
const joinSeparator = ", "
