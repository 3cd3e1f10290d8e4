package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/logger"
	"github.com/stemsi/quizdesk/internal/repository"
	"github.com/stemsi/quizdesk/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Open Snapshot Store ───────────────────────────────────────────
	store, closeStore, err := repository.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	authService := service.NewAuthService(store)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	color.New(color.Bold).Println("=== Store Backend Credentials ===")

	// Token
	fmt.Print("Enter Access Token: ")
	byteToken, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after hidden input
	if err != nil {
		color.Red("Error reading token")
		os.Exit(1)
	}
	token := strings.TrimSpace(string(byteToken))
	if token == "" {
		color.Red("Error: Token is required")
		os.Exit(1)
	}

	// Role
	fmt.Print("Enter Role [student/admin] (default student): ")
	roleStr, _ := reader.ReadString('\n')
	role := service.Role(strings.ToLower(strings.TrimSpace(roleStr)))
	if role == "" {
		role = service.RoleStudent
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	if err := authService.SetCredentials(ctx, token, role); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	st, err := authService.Status(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read credentials back")
	}
	color.Green("\nSuccess! Credentials stored for role '%s'", st.Role)
	if st.ExpiresAt != nil {
		fmt.Printf("Token expires at %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
}
