package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/database"
	"github.com/mishalinitiative/quizbot/internal/logger"
	"github.com/mishalinitiative/quizbot/internal/repository"
	"github.com/mishalinitiative/quizbot/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	adminRepo := repository.NewAdminRepository(pool)
	authService := service.NewAuthService(cfg, adminRepo)

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create Dashboard Admin ===")

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	if err := authService.CreateAdmin(ctx, name, email, password); err != nil {
		fmt.Printf("Error: could not create admin: %v\n", err)
		return
	}

	fmt.Printf("Admin %s <%s> created.\n", name, email)
}
