package queue

import (
	"github.com/civicsync/civicsync/pkg/pipeline/index"
	"github.com/civicsync/civicsync/pkg/pipeline/sync"
)

// DefaultDecoders wires every job type a registered Effect can
// produce to its Command decoder. Pool/Worker construction does not
// check that this registry covers every type_tag the Dispatcher's
// JobSpecProviders declare; a worker with no decoder for a claimed
// job's type fails that job loudly (MarkFailed) instead of silently
// dropping it.
func DefaultDecoders() DecoderRegistry {
	return DecoderRegistry{
		"extract_website": index.DecodeCommand,
		"sync_website":    sync.DecodeCommand,
	}
}
