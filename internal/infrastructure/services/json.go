package services

import (
	"encoding/json"
	"io"
)

// decodeJSON keeps numbers as json.Number so extracted values compare in
// their written form, without float rounding.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
