package view

import jsoniter "github.com/json-iterator/go"

// wireJSON is the json-iterator/go codec every MarshalJSON/ParseIcon
// in this package goes through, matching internal/rpc's wire codec.
var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary
