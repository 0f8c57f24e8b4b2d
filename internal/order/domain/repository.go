package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Order, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, status *Status) ([]Order, error)
	// TransitionStatus moves the order to `to`. When from is set the update only applies
	// while the stored status still equals it. Returns whether a row changed.
	TransitionStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from *Status, to Status, now time.Time) (bool, error)
}
