package internal

import (
	"errors"
	"io"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logWriter io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log stream.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logWriter = w
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	return app, nil
}

// logOutput returns the configured writer or fallback.
func (a *application) logOutput(fallback io.Writer) io.Writer {
	if a.logWriter != nil {
		return a.logWriter
	}
	return fallback
}
