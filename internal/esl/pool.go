package esl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/callwatch/callwatch/internal/config"
)

// Commander is the command-socket surface the dispatcher depends on. The
// roster/queue/tier listings run against the default server; channel
// listings, originates and raw commands name a registration server.
// Implementations may fail with connection errors; callers log and degrade.
type Commander interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	ListQueues(ctx context.Context) ([]Queue, error)
	ListTiers(ctx context.Context, queue string) ([]Tier, error)
	ListChannels(ctx context.Context, server string) ([]Channel, error)
	Originate(ctx context.Context, server, target, endpoint string) (string, error)
	Raw(ctx context.Context, server, command string) (string, error)
}

// Pool implements Commander against the configured registration servers,
// dialing a fresh connection per command and closing it afterwards.
type Pool struct {
	cfg    config.SwitchesConfig
	logger *slog.Logger
}

// NewPool creates a Pool from switch configuration.
func NewPool(cfg config.SwitchesConfig, logger *slog.Logger) *Pool {
	return &Pool{cfg: cfg, logger: logger.With("component", "esl")}
}

func (p *Pool) dial(server string) (*Client, error) {
	entry, ok := p.cfg.Servers[server]
	if !ok {
		return nil, fmt.Errorf("unknown registration server %q", server)
	}
	return Dial(entry.Addr, entry.Password, p.cfg.Timeout.Duration)
}

// call dials the named server, runs one api command, and closes.
func (p *Pool) call(server, command string) (string, error) {
	c, err := p.dial(server)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.API(command)
}

func (p *Pool) ListAgents(ctx context.Context) ([]Agent, error) {
	body, err := p.call(p.cfg.Default, "callcenter_config agent list")
	if err != nil {
		return nil, err
	}
	return parseAgents(body), nil
}

func (p *Pool) ListQueues(ctx context.Context) ([]Queue, error) {
	body, err := p.call(p.cfg.Default, "callcenter_config queue list")
	if err != nil {
		return nil, err
	}
	return parseQueues(body), nil
}

func (p *Pool) ListTiers(ctx context.Context, queue string) ([]Tier, error) {
	body, err := p.call(p.cfg.Default, "callcenter_config tier list "+queue)
	if err != nil {
		return nil, err
	}
	return parseTiers(body), nil
}

func (p *Pool) ListChannels(ctx context.Context, server string) ([]Channel, error) {
	body, err := p.call(server, "show channels as json")
	if err != nil {
		return nil, err
	}
	return parseChannels(body)
}

func (p *Pool) Originate(ctx context.Context, server, target, endpoint string) (string, error) {
	body, err := p.call(server, fmt.Sprintf("originate %s %s", target, endpoint))
	if err != nil {
		return "", err
	}
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "-ERR") {
		return body, fmt.Errorf("originate failed: %s", body)
	}
	return body, nil
}

func (p *Pool) Raw(ctx context.Context, server, command string) (string, error) {
	return p.call(server, command)
}
