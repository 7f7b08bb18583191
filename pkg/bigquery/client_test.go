package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		gcp  config.GCPConfig
		cfg  config.BigQueryConfig
		want error
	}{
		{config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", SettlementEventsTable: "t"}, errProjectIDRequired},
		{config.GCPConfig{ProjectID: "shop"}, config.BigQueryConfig{SettlementEventsTable: "t"}, errDatasetRequired},
		{config.GCPConfig{ProjectID: "shop"}, config.BigQueryConfig{Dataset: "d", SettlementEventsTable: "  "}, errTableNameRequired},
	}
	for _, tt := range tests {
		_, err := NewClient(ctx, tt.gcp, tt.cfg, nil)
		assert.ErrorIs(t, err, tt.want)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	assert.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	assert.NoError(t, c.Close())
}

func TestMissing(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	assert.EqualError(t, missing("table", "analytics.settlement_events", notFound), "table analytics.settlement_events does not exist")

	forbidden := &googleapi.Error{Code: http.StatusForbidden}
	err := missing("dataset", "analytics", forbidden)
	var apiErr *googleapi.Error
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
}
