package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolstack/toolstack/catalog"
)

const seedYAML = `
plans:
  - name: Starter
    description: For occasional use.
    price_monthly:
      amount: 900
      currency: USD
    price_yearly:
      amount: 9000
      currency: USD
    provider_price_id_monthly: pri_starter_m
    provider_price_id_yearly: pri_starter_y
    features:
      - 50 runs per month
    tool_limit: -1

tools:
  - name: Background Remover
    description: Removes backgrounds.
    icon: scissors
    is_premium: true
    free_usage_limit: 3
  - name: Image Resizer
    is_premium: false
    free_usage_limit: 0

grants:
  - plan: Starter
    tool: Background Remover
    usage_limit: 50
`

func TestSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := catalog.NewMemoryRepository()

	require.NoError(t, catalog.Seed(ctx, repo, []byte(seedYAML)))

	plans, err := repo.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	plan := plans[0]
	assert.Equal(t, "Starter", plan.Name)
	assert.Equal(t, catalog.Money{Amount: 900, Currency: "USD"}, plan.PriceMonthly)
	assert.Equal(t, "pri_starter_m", plan.ProviderPriceIDMonthly)
	assert.Equal(t, []string{"50 runs per month"}, plan.Features)
	assert.Equal(t, catalog.Unlimited, plan.ToolLimit)

	tools, err := repo.ListActiveTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)

	var remover catalog.Tool
	for _, tool := range tools {
		if tool.Name == "Background Remover" {
			remover = tool
		}
	}
	assert.True(t, remover.IsPremium)
	assert.Equal(t, int64(3), remover.FreeUsageLimit)

	grant, err := repo.GetGrant(ctx, plan.ID, remover.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), grant.UsageLimit)
}

func TestSeed_Invalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cases := []struct {
		name string
		raw  string
	}{
		{"malformed yaml", "plans: [}"},
		{"plan without name", "plans:\n  - description: nameless\n"},
		{"grant with unknown plan", "grants:\n  - plan: Ghost\n    tool: Ghost\n    usage_limit: 1\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := catalog.Seed(ctx, catalog.NewMemoryRepository(), []byte(tc.raw))
			assert.ErrorIs(t, err, catalog.ErrInvalidSeedFile)
		})
	}
}

func TestSeedFromFile_MissingFile(t *testing.T) {
	t.Parallel()

	err := catalog.SeedFromFile(context.Background(), catalog.NewMemoryRepository(), "testdata/does-not-exist.yml")
	assert.ErrorIs(t, err, catalog.ErrInvalidSeedFile)
}
