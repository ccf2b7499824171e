package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk-io/servicedesk/internal/config"
	"github.com/opsdesk-io/servicedesk/internal/domain"
)

func TestLoadAppliesSLAOverrides(t *testing.T) {
	t.Setenv("SLA_HIGH_RESPONSE_HOURS", "2")
	t.Setenv("SLA_HIGH_RESOLUTION_HOURS", "6")

	cfg, err := config.Load()
	require.NoError(t, err)

	policy := cfg.SLA.Policy()
	assert.Equal(t, 2*time.Hour, policy.Windows[domain.TicketPriorityHigh].Response)
	assert.Equal(t, 6*time.Hour, policy.Windows[domain.TicketPriorityHigh].Resolution)
}

func TestLoadRejectsInvertedSLAWindows(t *testing.T) {
	t.Setenv("SLA_MEDIUM_RESPONSE_HOURS", "30")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLA")
}

func TestLoadRejectsUnknownIngestSource(t *testing.T) {
	t.Setenv("INGEST_SOURCE", "imap")

	_, err := config.Load()
	require.Error(t, err)
}

func TestTeamRoutesCoverDefaultCategories(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	for _, category := range []domain.Category{
		domain.CategoryAccess,
		domain.CategoryNetwork,
		domain.CategoryInfrastructure,
		domain.CategoryEmail,
		domain.CategorySoftware,
	} {
		_, ok := cfg.Teams.Routes[category]
		assert.True(t, ok, "missing route for %s", category)
	}
	assert.Equal(t, "helpdesk@example.com", cfg.Teams.Fallback.Email)
}

func TestKafkaBrokerList(t *testing.T) {
	kafka := config.KafkaConfig{Brokers: "localhost:9092, broker-2:9092 ,"}
	assert.Equal(t, []string{"localhost:9092", "broker-2:9092"}, kafka.BrokerList())
	assert.True(t, kafka.Enabled())
	assert.False(t, config.KafkaConfig{}.Enabled())
}
