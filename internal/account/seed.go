package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/credgate/internal/model"
)

// SampleAccount は投入用のサンプルアカウント定義。
type SampleAccount struct {
	Username   string
	Secret     string
	Attributes []string
}

// SampleAccounts は開発・デモ用のサンプルアカウント。
var SampleAccounts = []SampleAccount{
	{Username: "admin", Secret: "admin", Attributes: []string{"role=admin", "clearance=gold"}},
	{Username: "gold", Secret: "password", Attributes: []string{"role=user", "clearance=gold", "team=frontend", "team=backend", "team=devops"}},
	{Username: "silver", Secret: "password", Attributes: []string{"role=user", "clearance=silver", "team=frontend"}},
	{Username: "bronze", Secret: "password", Attributes: []string{"role=user", "clearance=bronze", "team=devops"}},
	{Username: "guest", Secret: "password"},
}

// Seed はサンプルアカウントを投入し、新規作成した件数を返す。
// 同名のアカウントが既に存在する場合はスキップする。
func (s *Service) Seed(ctx context.Context, samples []SampleAccount) (int, error) {
	created := 0
	for _, sample := range samples {
		existing, err := s.repo.FindByUsername(ctx, sample.Username)
		if err != nil {
			return created, fmt.Errorf("failed to find account %s: %w", sample.Username, err)
		}
		if existing != nil {
			slog.Info("sample account already exists, skipping",
				slog.String("username", sample.Username),
			)
			continue
		}

		attrs, err := model.ParseAttributeSet(sample.Attributes)
		if err != nil {
			return created, fmt.Errorf("invalid attributes for %s: %w", sample.Username, err)
		}
		if _, err := s.Create(ctx, sample.Username, sample.Secret, attrs); err != nil {
			return created, err
		}
		created++
	}

	slog.Info("sample accounts seeded", slog.Int("created", created))
	return created, nil
}
