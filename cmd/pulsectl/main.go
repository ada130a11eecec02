package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/infra"
	"github.com/xela07ax/agent-pulse/internal/repository/sqlite"
)

// pulsectl — служебная утилита первоначальной настройки.
// Публичного роута регистрации операторов нет намеренно:
// учетки заводятся только локально, рядом с базой.
//
//	pulsectl add-operator -username admin -password secret
func main() {
	addOp := flag.NewFlagSet("add-operator", flag.ExitOnError)
	username := addOp.String("username", "", "operator login")
	password := addOp.String("password", "", "operator password")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pulsectl add-operator -username <name> -password <pass>")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "add-operator":
		addOp.Parse(os.Args[2:])
		if *username == "" || *password == "" {
			log.Fatal("both -username and -password are required")
		}
		runAddOperator(*username, *password)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runAddOperator(username, password string) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	storage, err := sqlite.NewStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer storage.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	op := &domain.Operator{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := storage.CreateOperator(ctx, op); err != nil {
		log.Fatalf("failed to create operator: %v", err)
	}
	fmt.Printf("operator %s created (id: %s)\n", username, op.ID)
}
