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

package common

import (
	"context"
	"fmt"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"go.uber.org/zap"
)

// InitializeProfiles retrieves profiles based on an optional email filter.
// If emailFilter is provided, returns a single profile with that email.
// If emailFilter is empty, returns all profiles.
func InitializeProfiles(ctx context.Context, profiles store.ProfileStore, emailFilter string, logger *zap.Logger) ([]models.Profile, error) {
	if emailFilter != "" {
		logger.Info("Looking up profile by email", zap.String("email", emailFilter))
		profile, err := profiles.GetProfileByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("profile not found: %w", err)
		}
		return []models.Profile{*profile}, nil
	}

	all, err := profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}

	logger.Info("Retrieved profiles", zap.Int("count", len(all)))
	return all, nil
}
