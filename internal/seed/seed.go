package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/shopfloor/internal/clock"
	"github.com/smallbiznis/shopfloor/internal/config"
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	workerdomain "github.com/smallbiznis/shopfloor/internal/worker/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed ids so a local client can send known X-Org-Id / X-Worker-Id headers.
const (
	DemoOrgID        snowflake.ID = 1
	DemoWorkerID     snowflake.ID = 100
	DemoItemID       snowflake.ID = 200
	DemoOrderID      snowflake.ID = 300
	DemoLooseOrderID snowflake.ID = 301
)

var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, c clock.Clock, log *zap.Logger) error {
		if !cfg.SeedDemo {
			return nil
		}
		if err := EnsureDemoData(context.Background(), conn, c.Now().UTC()); err != nil {
			return err
		}
		log.Info("demo data seeded",
			zap.String("org_id", DemoOrgID.String()),
			zap.String("worker_id", DemoWorkerID.String()),
		)
		return nil
	}),
)

// EnsureDemoData inserts one worker, one stocked material and two orders. Existing rows are left untouched.
func EnsureDemoData(ctx context.Context, db *gorm.DB, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	itemID := DemoItemID
	perUnit := decimal.RequireFromString("2.5")

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{DoNothing: true})

		if err := insert.Create(&workerdomain.Worker{
			ID:         DemoWorkerID,
			OrgID:      DemoOrgID,
			Name:       "Demo Worker",
			HourlyRate: decimal.NewFromInt(180),
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error; err != nil {
			return err
		}

		if err := insert.Create(&inventorydomain.InventoryItem{
			ID:        DemoItemID,
			OrgID:     DemoOrgID,
			Name:      "Steel sheet",
			SKU:       "STL-001",
			Unit:      "sheet",
			Quantity:  decimal.NewFromInt(100),
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error; err != nil {
			return err
		}

		orders := []orderdomain.Order{
			{
				ID:                     DemoOrderID,
				OrgID:                  DemoOrgID,
				Code:                   "WO-0001",
				Status:                 orderdomain.StatusPending,
				Quantity:               decimal.NewFromInt(2),
				LinkedInventoryItemID:  &itemID,
				MaterialQuantityNeeded: &perUnit,
				Version:                1,
				CreatedAt:              now,
				UpdatedAt:              now,
			},
			{
				ID:        DemoLooseOrderID,
				OrgID:     DemoOrgID,
				Code:      "WO-0002",
				Status:    orderdomain.StatusPending,
				Quantity:  decimal.NewFromInt(1),
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			},
		}
		for i := range orders {
			if err := insert.Create(&orders[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
