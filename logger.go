package ftsboot

type logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
}

type nullLogger struct{}

func (l *nullLogger) Debugf(format string, args ...interface{}) {}
func (l *nullLogger) Infof(format string, args ...interface{})  {}
func (l *nullLogger) Warnf(format string, args ...interface{})  {}
func (l *nullLogger) Errorf(format string, args ...interface{}) {}

// The package logger
var pkgLog logger = &nullLogger{}

// SetLogger sets the logger used internally by the package.
// A nil logger disables logging.
func SetLogger(l logger) {
	if l == nil {
		l = &nullLogger{}
	}
	pkgLog = l
}
