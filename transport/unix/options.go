package unix

// config holds configuration for a Unix socket listener.
type config struct {
	// readBufferSize is the bufio.Reader size for accepted connections.
	readBufferSize int

	// writeBufferSize is the bufio.Writer size for accepted connections.
	writeBufferSize int

	// socketMode is the file mode applied to the socket file after
	// listening. Default is 0600 (owner read/write only).
	socketMode uint32

	// unlinkExisting removes an existing socket file at the target path
	// before listening. Default is true.
	unlinkExisting bool
}

func defaultConfig() *config {
	return &config{
		readBufferSize:  64 * 1024,
		writeBufferSize: 64 * 1024,
		socketMode:      0600,
		unlinkExisting:  true,
	}
}

// Option configures a Unix socket listener.
type Option func(*config)

// WithReadBufferSize sets the read buffer size for accepted connections.
// Default is 64KiB.
func WithReadBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.readBufferSize = size
		}
	}
}

// WithWriteBufferSize sets the write buffer size for accepted connections.
// Default is 64KiB.
func WithWriteBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.writeBufferSize = size
		}
	}
}

// WithSocketMode sets the file mode applied to the socket file. Default is
// 0600.
func WithSocketMode(mode uint32) Option {
	return func(c *config) {
		c.socketMode = mode
	}
}

// WithUnlinkExisting controls whether an existing socket file at the
// target path is removed before listening. Default is true.
func WithUnlinkExisting(unlink bool) Option {
	return func(c *config) {
		c.unlinkExisting = unlink
	}
}
