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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateProfile(ctx context.Context, id, email, displayName string) (*models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &store.ValidationError{Field: "email", Reason: "cannot be empty"}
	}
	if id == "" {
		id = uuid.New().String()
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(queryInsertProfile), id, email, displayName, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: profile %s already exists", store.ErrDuplicateTransaction, email)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	zap.L().Info("Profile created", zap.String("id", id), zap.String("email", email))
	return s.GetProfile(ctx, id)
}

func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.GetContext(ctx, &profile, s.db.Rebind(queryGetProfile), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *Service) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.GetContext(ctx, &profile, s.db.Rebind(queryGetProfileByEmail), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile by email: %w", err)
	}
	return &profile, nil
}

func (s *Service) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.SelectContext(ctx, &profiles, queryListProfiles); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}
