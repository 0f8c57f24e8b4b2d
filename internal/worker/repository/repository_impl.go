package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	workerdomain "github.com/smallbiznis/shopfloor/internal/worker/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() workerdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*workerdomain.Worker, error) {
	var worker workerdomain.Worker
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, hourly_rate, active, created_at, updated_at
		 FROM workers WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&worker).Error
	if err != nil {
		return nil, err
	}
	if worker.ID == 0 {
		return nil, nil
	}
	return &worker, nil
}
