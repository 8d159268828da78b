package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/Abdulquadri-hub/niceblog/database"
)

// EnsureLandlordSchema applies the landlord DDL to the registry database. All
// statements use IF NOT EXISTS so this is safe to run on every boot.
func EnsureLandlordSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, sqlassets.LandlordSQL); err != nil {
		return fmt.Errorf("apply landlord schema: %w", err)
	}
	return nil
}
