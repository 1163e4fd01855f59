package db

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"ms-attendance/internal/models"
)

// Migrate creates the attendance tables if they do not exist. Dev and test
// bootstrap only; production schema changes go through the SQL migration
// runner in internal/database/migrations.
func Migrate(db *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{
		(*models.Event)(nil),
		(*models.AreaCounter)(nil),
		(*models.AreaTemplate)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed: %v", err)
		}
	}

	log.Println("attendance tables ready")
}
