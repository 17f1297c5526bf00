// Package bridge wires the backend subprocess, the Gateway State, the
// Notification Dispatcher, and the Event Loop into one runnable process.
// It owns the ambient concerns around them: process lifecycle and
// listener setup. Signal handling lives in cmd/, which cancels the
// context passed to Run.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/config"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/gateway"
)

const maxGatewayNameBytes = 63

// Bridge owns the backend subprocess, the gateway's runtime components,
// and the listeners clients connect to.
type Bridge struct {
	cfg    *config.Config
	log    *slog.Logger
	cmd    *exec.Cmd
	client backend.Client
	loop   *gateway.EventLoop
	ln     []net.Listener
	ledger *Ledger
}

// New spawns the backend subprocess, completes its handshake and
// startup RPCs, and builds the gateway components bound to it. The
// backend process is left running and Run terminates it; if New itself
// fails after the spawn, it kills the process before returning.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Bridge, error) {
	cmd := exec.CommandContext(ctx, cfg.BackendBinaryPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: backend stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge: start backend: %w", err)
	}

	hs, err := backend.ReadHandshake(bufio.NewReader(stdout))
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("bridge: backend handshake: %w", err)
	}

	client := backend.NewHTTPClient(hs.Port, hs.Token)

	if err := client.Config(ctx, cfg.BackendHost, cfg.BackendPort, config.ExpandHome(cfg.DatabaseDir), config.ExpandHome(cfg.SchemaDir), config.ExpandHome(cfg.AttachmentDir), cfg.UseTLS); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("bridge: backend Config: %w", err)
	}

	username := cfg.Username
	if username == "" {
		username, err = defaultLocalUsername(ctx, client)
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("bridge: resolve local account: %w", err)
		}
	}
	if err := client.StartUp(ctx, username, cfg.BackendURI); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("bridge: backend StartUp: %w", err)
	}

	var ledger *Ledger
	if cfg.StateDBPath != "" {
		ledger, err = OpenLedger(cfg.StateDBPath)
		if err != nil {
			log.Warn("state ledger unavailable, running in-memory", "path", cfg.StateDBPath, "error", err)
			ledger = nil
		}
	}

	state := gateway.NewState(gatewayName(), cfg.ShowTimestamps, username, client, log)
	if ledger != nil {
		if err := ledger.Restore(ctx, state); err != nil {
			log.Warn("state ledger restore failed", "error", err)
		}
	}

	dispatcher := gateway.NewDispatcher(state, client, log)
	loop := gateway.NewEventLoop(state, dispatcher, client, log)

	listeners, err := listen(cfg.Ports)
	if err != nil {
		_ = client.Terminate()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("bridge: listen: %w", err)
	}

	return &Bridge{cfg: cfg, log: log, cmd: cmd, client: client, loop: loop, ln: listeners, ledger: ledger}, nil
}

// defaultLocalUsername discovers the identity to bind the session to
// when none is configured: the first local account the backend knows
// that has a non-empty email address.
// Resolved before StartUp, since that call binds the session to it;
// the same value becomes the forced nickname for every client.
func defaultLocalUsername(ctx context.Context, client backend.Client) (string, error) {
	accounts, err := client.EnumerateLocalAccounts(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		if a.EmailAddress != "" {
			return a.EmailAddress, nil
		}
	}
	return "", fmt.Errorf("backend has no local accounts")
}

// gatewayName derives the line-protocol server name: the host name
// reported by os.Hostname (not resolved to a fully qualified name),
// truncated to 63 bytes, the RFC 2812 limit on server names.
func gatewayName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "lineproto-gateway"
	}
	if len(host) > maxGatewayNameBytes {
		host = host[:maxGatewayNameBytes]
	}
	return host
}

func listen(ports []string) ([]net.Listener, error) {
	var out []net.Listener
	for _, port := range ports {
		ln, err := net.Listen("tcp", "127.0.0.1:"+port)
		if err != nil {
			for _, opened := range out {
				opened.Close()
			}
			return nil, fmt.Errorf("listen on port %s: %w", port, err)
		}
		out = append(out, ln)
	}
	return out, nil
}

// Run serves client connections until ctx is canceled, then tears down
// every session, terminates the backend RPC session, persists the
// naming ledger if one is configured, and kills the backend subprocess.
func (b *Bridge) Run(ctx context.Context) {
	go RunHealthProbe(ctx, b.cfg.Cron, b.client, b.log)

	b.loop.Run(ctx, b.ln)
	if b.ledger != nil {
		if err := b.ledger.Persist(context.Background(), b.loop.State()); err != nil {
			b.log.Warn("state ledger persist failed", "error", err)
		}
		b.ledger.Close()
	}
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
}
