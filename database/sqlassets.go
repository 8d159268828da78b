// Package sqlassets embeds the SQL shipped with the landlord service: the
// landlord control-plane schema, the per-tenant migration set applied during
// provisioning, and the baseline seed data every new tenant database receives.
package sqlassets

import "embed"

//go:embed landlord/landlord.sql
var LandlordSQL string

//go:embed tenant/seed.sql
var TenantSeedSQL string

//go:embed tenant/migrations/*.sql
var TenantMigrations embed.FS

// TenantMigrationsDir is the path of the goose migration set inside TenantMigrations.
const TenantMigrationsDir = "tenant/migrations"
