package paging

import "log/slog"

// A Builder can build Walkers.
type Builder struct {
	reader Reader
	level  Level
	logger *slog.Logger
	hooks  []Hook
}

// MakeBuilder creates a new builder. Without WithLevel, the walker infers
// the level of each table from its address.
func MakeBuilder() Builder {
	return Builder{
		logger: slog.Default(),
	}
}

// WithReader sets the memory the walker reads entries from.
func (b Builder) WithReader(r Reader) Builder {
	b.reader = r
	return b
}

// WithLevel makes the walker treat every table as being at level l instead
// of inferring it. A zero level restores inference.
func (b Builder) WithLevel(l Level) Builder {
	b.level = l
	return b
}

// WithLogger sets the logger warnings are written to.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithHook registers a hook on the walker being built.
func (b Builder) WithHook(hook Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build creates a new Walker.
func (b Builder) Build() *Walker {
	if b.reader == nil {
		panic("page table walker requires a reader")
	}

	if b.level != 0 && !b.level.Valid() {
		panic(ErrInvalidLevel)
	}

	w := &Walker{
		reader: b.reader,
		level:  b.level,
		logger: b.logger,
	}

	for _, h := range b.hooks {
		w.AcceptHook(h)
	}

	return w
}
