package consts

import "time"

// Protocol limits
const (
	// MaxUploadBytes is the default ceiling for a declared upload size (100 MiB)
	MaxUploadBytes = 100 * 1024 * 1024
	// DefaultChatView is the number of chat messages shown when no count is given
	DefaultChatView = 100
	// AIHistoryWindow is the number of AI turns sent to the backend per request
	AIHistoryWindow = 20
	// MinUsernameLength is the shortest accepted username
	MinUsernameLength = 3
	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 4
	// TaskIDLength is the number of characters kept from a UUID for task ids
	TaskIDLength = 8
)

// Sub-protocol markers
const (
	// MultilineSentinel terminates a multi-line body
	MultilineSentinel = "END"
)

// Buffer sizes for various operations
const (
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout60Seconds is a 60 second timeout (1 minute)
	Timeout60Seconds = 60 * time.Second
	// Timeout2Minutes is a 2 minute timeout
	Timeout2Minutes = 2 * time.Minute
)
