/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"regexp"
	"time"

	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/middleware"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Display name (required)")
	emailFlag := flag.String("email", "", "Email address (required)")
	idFlag := flag.String("id", "", "Profile id, normally the auth provider's user id (default: random UUID)")
	printToken := flag.Bool("print-token", false, "Print a signed API token for the new profile (requires JWT_SECRET)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed token")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	userId := *idFlag
	if userId == "" {
		userId = uuid.New().String()
	}

	zap.L().Info("Creating profile",
		zap.String("id", userId),
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag))

	profile, err := dbService.CreateProfile(ctx, userId, *emailFlag, *nameFlag)
	if err != nil {
		zap.L().Fatal("Failed to create profile", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("PROFILE CREATED", common.DefaultWidth)
	fmt.Printf("ID:    %s\n", profile.Id)
	fmt.Printf("Name:  %s\n", profile.DisplayName)
	fmt.Printf("Email: %s\n", profile.Email)

	if *printToken {
		token, err := middleware.GenerateToken(cfg.Server.JWTSecret, profile.Id, *tokenTTL)
		if err != nil {
			zap.L().Fatal("Failed to sign token, is JWT_SECRET set?", zap.Error(err))
		}
		fmt.Printf("Token: %s\n", token)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Profile created successfully", zap.String("id", profile.Id))
}
