// Package mapper converts scenario files to and from the domain model.
package mapper

import "github.com/sophialabs/httpmocker/pkg/scenario"

// Mapper parses and serializes the ordered entry list of one scenario file.
type Mapper interface {
	// Unmarshal decodes a scenario file. Entry order is preserved.
	Unmarshal(data []byte) ([]scenario.Entry, error)
	// Marshal encodes entries in order.
	Marshal(entries []scenario.Entry) ([]byte, error)
	// Extension is the file extension, without dot, that the format uses.
	Extension() string
}
