package logger

var defLogger = NewSlog(InfoLevel, false)

// SetLevel sets the level of the package default logger.
func SetLevel(level Level) {
	defLogger.SetLevel(level)
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return defLogger
}
