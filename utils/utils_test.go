package utils_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/depwatch/utils"
)

func TestFetchURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("debug:4.4.2\n"))
	}))
	defer ts.Close()

	body, err := utils.FetchURL(ts.URL+"/feed.txt", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "debug:4.4.2\n", string(body))

	_, err = utils.FetchURL(ts.URL+"/missing.txt", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code: 404")
}

func TestTrimSpaceNewline(t *testing.T) {
	assert.Equal(t, "debug@4.4.2", utils.TrimSpaceNewline("  debug@4.4.2\r\n"))
}

func TestLookupEnv(t *testing.T) {
	t.Setenv("DEPWATCH_TEST_KEY", "set")
	assert.Equal(t, "set", utils.LookupEnv("DEPWATCH_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", utils.LookupEnv("DEPWATCH_TEST_KEY_MISSING", "fallback"))
}
