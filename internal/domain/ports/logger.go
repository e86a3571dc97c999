package ports

// Logger is the structured logger services and adapters depend on, so
// they stay free of a concrete logging library
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
}

// Field is one key/value pair attached to a log entry
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field, e.g. a payment id
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field, used for minor-unit amounts
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field holding an arbitrary value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err attaches err under the "error" key
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
