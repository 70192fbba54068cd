package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile mirrors the on-disk YAML structure for catalog seeding.
// Grants reference plans and tools by name so the file stays readable.
type seedFile struct {
	Plans []struct {
		Name                   string   `yaml:"name"`
		Description            string   `yaml:"description"`
		PriceMonthly           Money    `yaml:"price_monthly"`
		PriceYearly            Money    `yaml:"price_yearly"`
		ProviderPriceIDMonthly string   `yaml:"provider_price_id_monthly"`
		ProviderPriceIDYearly  string   `yaml:"provider_price_id_yearly"`
		Features               []string `yaml:"features"`
		ToolLimit              int64    `yaml:"tool_limit"`
	} `yaml:"plans"`
	Tools []struct {
		Name           string `yaml:"name"`
		Description    string `yaml:"description"`
		Icon           string `yaml:"icon"`
		IsPremium      bool   `yaml:"is_premium"`
		FreeUsageLimit int64  `yaml:"free_usage_limit"`
	} `yaml:"tools"`
	Grants []struct {
		Plan       string `yaml:"plan"`
		Tool       string `yaml:"tool"`
		UsageLimit int64  `yaml:"usage_limit"`
	} `yaml:"grants"`
}

// SeedFromFile loads a YAML seed file into the repository. Existing
// entries are left untouched; seeding is intended for empty catalogs in
// development and test environments.
func SeedFromFile(ctx context.Context, repo Repository, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrInvalidSeedFile, err)
	}
	return Seed(ctx, repo, raw)
}

// Seed loads raw YAML seed data into the repository.
func Seed(ctx context.Context, repo Repository, raw []byte) error {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return errors.Join(ErrInvalidSeedFile, err)
	}

	planIDs := make(map[string]uuid.UUID, len(file.Plans))
	for _, p := range file.Plans {
		if p.Name == "" {
			return errors.Join(ErrInvalidSeedFile, errors.New("plan without a name"))
		}
		plan, err := repo.CreatePlan(ctx, Plan{
			Name:                   p.Name,
			Description:            p.Description,
			PriceMonthly:           p.PriceMonthly,
			PriceYearly:            p.PriceYearly,
			ProviderPriceIDMonthly: p.ProviderPriceIDMonthly,
			ProviderPriceIDYearly:  p.ProviderPriceIDYearly,
			Features:               p.Features,
			ToolLimit:              p.ToolLimit,
			IsActive:               true,
		})
		if err != nil {
			return fmt.Errorf("seed plan %q: %w", p.Name, err)
		}
		planIDs[p.Name] = plan.ID
	}

	toolIDs := make(map[string]uuid.UUID, len(file.Tools))
	for _, t := range file.Tools {
		if t.Name == "" {
			return errors.Join(ErrInvalidSeedFile, errors.New("tool without a name"))
		}
		tool, err := repo.CreateTool(ctx, Tool{
			Name:           t.Name,
			Description:    t.Description,
			Icon:           t.Icon,
			IsPremium:      t.IsPremium,
			FreeUsageLimit: t.FreeUsageLimit,
			IsActive:       true,
		})
		if err != nil {
			return fmt.Errorf("seed tool %q: %w", t.Name, err)
		}
		toolIDs[t.Name] = tool.ID
	}

	for _, g := range file.Grants {
		planID, ok := planIDs[g.Plan]
		if !ok {
			return errors.Join(ErrInvalidSeedFile, fmt.Errorf("grant references unknown plan %q", g.Plan))
		}
		toolID, ok := toolIDs[g.Tool]
		if !ok {
			return errors.Join(ErrInvalidSeedFile, fmt.Errorf("grant references unknown tool %q", g.Tool))
		}
		if err := repo.SetGrant(ctx, ToolGrant{PlanID: planID, ToolID: toolID, UsageLimit: g.UsageLimit}); err != nil {
			return fmt.Errorf("seed grant %s/%s: %w", g.Plan, g.Tool, err)
		}
	}

	return nil
}
