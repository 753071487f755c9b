package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPollInterval bounds each multiplexing wait and file reread.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultStopGrace is how long Stop waits after SIGTERM before SIGKILL.
	DefaultStopGrace = 10 * time.Second
)

// Sink receives output chunks synchronously while the controller reads
// them. It must not block indefinitely.
type Sink func(ch Channel, chunk []byte)

// Config describes the child process a Controller runs. Command, Shell,
// Dir, and Env are fixed for the life of the Controller; Input and Sink can
// be replaced between runs with SetInput and SetSink.
type Config struct {
	// Command is the argument vector. Exactly one of Command and Shell is set.
	Command []string `validate:"required_without=Shell"`
	// Shell is a command line run through the platform shell.
	Shell string `validate:"excluded_with=Command"`

	Dir string `validate:"omitempty,dir"`
	// Env is merged over the parent environment unless ClearEnv is set.
	Env      map[string]string `validate:"omitempty,dive,keys,required,endkeys"`
	ClearEnv bool

	Input *Input `validate:"-"`
	Sink  Sink   `validate:"-"`

	// Timeout limits the wall time of each run. Zero disables it.
	Timeout time.Duration `validate:"gte=0"`
	// IdleTimeout limits the time between output chunks. Zero disables it.
	IdleTimeout time.Duration `validate:"gte=0"`

	Strategy Strategy `validate:"oneof=0 1"`
	// DiscardOutput disables output collection. The Sink still receives chunks.
	DiscardOutput bool

	PollInterval time.Duration `validate:"gte=0"`
	StopGrace    time.Duration `validate:"gte=0"`

	// TempDir is the parent of the file-mode workspace. Defaults to os.TempDir().
	TempDir string

	Logger *slog.Logger `validate:"-"`
}

var validate = validator.New()

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopGrace == 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Field(), Err: fmt.Errorf("failed %q constraint (value %v)", fe.Tag(), fe.Value())}
		}
		return &ConfigError{Err: err}
	}
	if c.Shell == "" && len(c.Command) == 0 {
		return &ConfigError{Field: "Command", Err: errors.New("no command given")}
	}
	if len(c.Command) > 0 && c.Command[0] == "" {
		return &ConfigError{Field: "Command", Err: errors.New("program name is empty")}
	}
	for k := range c.Env {
		if strings.ContainsAny(k, "=\x00") {
			return &ConfigError{Field: "Env", Err: fmt.Errorf("invalid variable name %q", k)}
		}
	}
	return nil
}

func (c *Config) argv() []string {
	if c.Shell != "" {
		return shellArgv(c.Shell)
	}
	return append([]string(nil), c.Command...)
}

// environ returns the child environment, or nil to inherit the parent's.
func (c *Config) environ() []string {
	if len(c.Env) == 0 && !c.ClearEnv {
		return nil
	}
	merged := make(map[string]string)
	if !c.ClearEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range c.Env {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
