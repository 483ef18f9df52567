package opc

// ErrorAction defines what a Conn does after its error callback has
// seen a read or write error.
type ErrorAction int

const (
	// Disconnect tears the connection down.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and keeps the stream going. For
	// frame errors that carry a trustworthy length field the Conn
	// skips the offending frame to resynchronize.
	Continue
)

// options holds the configuration for a Conn.
type options struct {
	device Device
	logger Logger

	// onError is called for every read or write error and picks the
	// ErrorAction to take.
	onError func(error) ErrorAction

	bufferSize int // size of the outbound message channel
}

// Option is a function that configures a Conn.
type Option func(*options)

// DeviceOption returns an Option that sets the consumer device.
// The device is required and must be provided before creating a Conn.
func DeviceOption(device Device) Option {
	return func(o *options) {
		o.device = device
	}
}

// BufferSizeOption returns an Option that sets the size of the
// outbound message channel. A larger buffer lets more messages queue
// before Write reports backpressure.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// Return Disconnect to close the connection, or Continue to suppress
// the error and resynchronize where possible.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger. If not set,
// the default slog logger is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions validates and sets default values for Conn options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.device == nil {
		return ErrInvalidDevice
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}
