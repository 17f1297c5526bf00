package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/backend"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend reachability",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("lineproto-gateway doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using built-in defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Backend:")
	fmt.Printf("    %-18s %s\n", "Binary:", checkBinaryPath(cfg.BackendBinaryPath))
	fmt.Printf("    %-18s %s:%s\n", "RPC target:", cfg.BackendHost, cfg.BackendPort)
	fmt.Printf("    %-18s %s\n", "Username:", orPlaceholder(cfg.Username, "(not configured)"))

	fmt.Println()
	fmt.Println("  Directories:")
	checkDir("Database dir", cfg.DatabaseDir)
	checkDir("Schema dir", cfg.SchemaDir)
	checkDir("Attachment dir", cfg.AttachmentDir)

	fmt.Println()
	fmt.Printf("  Listeners: %v\n", []string(cfg.Ports))

	fmt.Println()
	fmt.Println("  Reachability:")
	checkBackendReachable(cfg)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkBinaryPath(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return "NOT FOUND on PATH (" + name + ")"
	}
	return path
}

func checkDir(label, path string) {
	resolved := config.ExpandHome(path)
	status := "OK"
	if _, err := os.Stat(resolved); err != nil {
		status = "will be created on first run"
	}
	fmt.Printf("    %-18s %s (%s)\n", label+":", resolved, status)
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}

// checkBackendReachable spawns the backend, performs the handshake and
// a single lightweight StartUp-free RPC, then tears it down — it never
// leaves a gateway session running, unlike `run`.
func checkBackendReachable(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.BackendBinaryPath)
	stdout, pipeErr := cmd.StdoutPipe()
	if pipeErr != nil {
		fmt.Printf("    %-18s FAILED (%s)\n", "Backend:", pipeErr)
		return
	}
	if startErr := cmd.Start(); startErr != nil {
		fmt.Printf("    %-18s FAILED to start (%s)\n", "Backend:", startErr)
		return
	}
	defer cmd.Process.Kill()

	hs, hsErr := backend.ReadHandshake(stdout)
	if hsErr != nil {
		fmt.Printf("    %-18s handshake FAILED (%s)\n", "Backend:", hsErr)
		return
	}

	client := backend.NewHTTPClient(hs.Port, hs.Token)
	if _, err := client.EnumerateLocalAccounts(ctx); err != nil {
		fmt.Printf("    %-18s RPC FAILED (%s)\n", "Backend:", err)
		return
	}
	fmt.Printf("    %-18s OK (handshake + RPC round trip succeeded)\n", "Backend:")
}
