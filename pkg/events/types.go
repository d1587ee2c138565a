package events

import "time"

// DefaultWriteTimeout bounds how long a single WebSocket write may
// block before the connection is considered unresponsive.
const DefaultWriteTimeout = 5 * time.Second
