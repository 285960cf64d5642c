package grpcjson

import (
	"github.com/ridgeline/gateway/internal/proxy/protocol"
)

func init() {
	protocol.Register("grpc_json", func() protocol.Translator {
		return New()
	})
}
