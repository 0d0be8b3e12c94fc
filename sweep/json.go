package sweep

import (
	jsoniter "github.com/json-iterator/go"
)

// wireJSON mirrors internal/rpc's and internal/view's drop-in
// replacement for encoding/json, so Candidate/Field/item payloads
// marshal with the same codec the wire uses.
var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary
