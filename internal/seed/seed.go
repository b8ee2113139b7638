package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	pipelinerepo "github.com/smallbiznis/realvest/internal/pipeline/repository"
	"gorm.io/gorm"
)

// EnsureDealStages seeds the default pipeline stages and reports how many
// were created. Existing stages are left untouched.
func EnsureDealStages(ctx context.Context, db *gorm.DB) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return 0, err
	}

	repo := pipelinerepo.Provide()
	created := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range pipelinedomain.DefaultStages {
			name := slug.Make(def.DisplayName)
			existing, err := repo.FindStageByName(ctx, tx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			stage := &pipelinedomain.DealStage{
				ID:           node.Generate(),
				Name:         name,
				DisplayName:  def.DisplayName,
				DisplayOrder: def.DisplayOrder,
				Color:        def.Color,
				CreatedAt:    time.Now().UTC(),
			}
			if err := repo.InsertStage(ctx, tx, stage); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
