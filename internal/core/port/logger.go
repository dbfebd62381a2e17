package port

// Fields carries structured data into the log record.
type Fields map[string]interface{}

// LoggerPort is the logging contract used across the service.
type LoggerPort interface {
	Info(msg string, fields Fields)

	Warn(msg string, fields Fields)

	Error(msg string, err error, fields Fields)

	Debug(msg string, fields Fields)
	// WithFields returns a logger with the fields pre-attached.
	WithFields(fields Fields) LoggerPort
}
