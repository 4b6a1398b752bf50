// Package cli implements the snowball command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DeBrosOfficial/snowball/pkg/config"
	"github.com/DeBrosOfficial/snowball/pkg/snowball"
)

// Env carries the global flags and the process streams of one invocation.
type Env struct {
	ConfigPath string
	Format     string // table or json
	Timeout    time.Duration

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// DefaultEnv reads from stdin and writes to stdout and stderr.
func DefaultEnv() *Env {
	return &Env{
		Format:  "table",
		Timeout: 30 * time.Second,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
}

// ParseGlobalFlags applies -c, -f and -t wherever they appear in args and
// returns the remaining arguments.
func (e *Env) ParseGlobalFlags(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--config":
			if i+1 < len(args) {
				e.ConfigPath = args[i+1]
				i++
			}
		case "-f", "--format":
			if i+1 < len(args) {
				e.Format = args[i+1]
				i++
			}
		case "-t", "--timeout":
			if i+1 < len(args) {
				if d, err := time.ParseDuration(args[i+1]); err == nil {
					e.Timeout = d
				}
				i++
			}
		default:
			rest = append(rest, args[i])
		}
	}
	return rest
}

func (e *Env) loadConfig() (*config.Config, error) {
	path := e.ConfigPath
	if path == "" {
		if p, err := config.DefaultPath("config.yaml"); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	return config.Load(path)
}

// open builds an orchestrator with no auth providers. The cli only talks to
// the backend, so sessions go to a file unless another durable backend is set.
func (e *Env) open(ctx context.Context) (*snowball.Snowball, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == config.BackendMemory {
		cfg.Storage.Backend = config.BackendFile
	}
	cfg.Logging.Quiet = true

	opts, err := snowball.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return snowball.New(ctx, opts)
}

func (e *Env) context() (context.Context, context.CancelFunc) {
	if e.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), e.Timeout)
}

func (e *Env) printJSON(v interface{}) error {
	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *Env) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.Out, format, args...)
}
