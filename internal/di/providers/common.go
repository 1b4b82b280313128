package providers

import "time"

// shutdownTimeout bounds graceful shutdown of the HTTP server and workers.
const shutdownTimeout = 30 * time.Second
