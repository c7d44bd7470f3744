package reporter

import (
	"context"
	"testing"

	"github.com/Sternrassler/qatouch-reporter/internal/testutil"
	"github.com/Sternrassler/qatouch-reporter/pkg/qatouch"
	"github.com/Sternrassler/qatouch-reporter/pkg/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig(qatouch.Credentials{Subdomain: "acme", APIToken: "tok", ProjectKey: "PRJ"}, "TR9")
	cfg.Client.BaseURL = baseURL
	return cfg
}

func TestNew_RequiresSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing subdomain", func(c *Config) { c.Client.Credentials.Subdomain = "" }, "subdomain"},
		{"missing token", func(c *Config) { c.Client.Credentials.APIToken = "" }, "api token"},
		{"missing project", func(c *Config) { c.Client.Credentials.ProjectKey = "" }, "project key"},
		{"missing test run", func(c *Config) { c.TestRunKey = "" }, "test run key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockQATouch()
			defer mock.Close()

			cfg := testConfig(mock.URL())
			tt.mutate(&cfg)

			r, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, qatouch.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
			assert.Zero(t, mock.GetRequestCount(), "no request before configuration is valid")
		})
	}
}

func TestNew_DefaultComments(t *testing.T) {
	cfg := testConfig("https://api.qatouch.com/api/v1")
	cfg.Comments = ""

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, DefaultComments, r.comments)
	assert.Equal(t, "TR9", r.TestRunKey())
}

func TestReporter_SessionFlow(t *testing.T) {
	mock := testutil.NewMockQATouch()
	defer mock.Close()

	r, err := New(testConfig(mock.URL()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Record(1, "passed"))
	require.NoError(t, r.Record(2, "failed"))
	require.NoError(t, r.Record(3, "skipped"))
	assert.Error(t, r.Record(4, "unknown"))

	ctx := context.Background()
	require.NoError(t, r.FlushAll(ctx))
	require.NoError(t, r.FlushAll(ctx))
	assert.ErrorIs(t, r.Record(5, "passed"), results.ErrFlushed)

	updates := mock.GetStatusUpdates()
	require.Len(t, updates, 1, "results are sent exactly once")
	assert.Equal(t, `[{"case":1,"status":1},{"case":2,"status":5},{"case":3,"status":3}]`, updates[0].Get("result"))
	assert.Equal(t, DefaultComments, updates[0].Get("comments"))
	assert.Len(t, r.Results(), 3)
}

func TestReporter_FlushFailureIsReturned(t *testing.T) {
	mock := testutil.NewMockQATouch()
	defer mock.Close()
	mock.SetResponse("/testRunResults/status/multiple", testutil.NewServiceFailureResponse("Invalid test run"))

	r, err := New(testConfig(mock.URL()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Record(1, "passed"))

	err = r.FlushAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid test run")

	var reqErr *qatouch.RequestError
	assert.ErrorAs(t, err, &reqErr)
}
