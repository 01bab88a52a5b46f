package codec

import (
	"encoding/base64"
	"errors"

	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
)

var ErrMalformedEncoding = errors.New("malformed base64 transport string")

// EncodeToTransport encodes bytes as standard padded base64.
func EncodeToTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromTransport is the inverse of EncodeToTransport. Invalid characters or
// padding yield ErrMalformedEncoding.
func DecodeFromTransport(transport string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(transport)
	if err != nil {
		return nil, utils.WrapIfNotNil(errors.Join(ErrMalformedEncoding, err))
	}
	return data, nil
}
