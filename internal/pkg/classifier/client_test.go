package classifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/moodsense/moody/internal/pkg/classifier/api"
	"github.com/moodsense/moody/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initClient(t *testing.T, urlStr string) *Client {
	t.Helper()
	prov, err := StaticURL(urlStr)
	require.Nil(t, err)
	res, err := NewClient(prov, "yamnet")
	require.Nil(t, err)
	res.backoff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	return res
}

func Test_Classify(t *testing.T) {
	var gotInput api.ClassifyInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/classify", r.URL.Path)
		require.Nil(t, json.NewDecoder(r.Body).Decode(&gotInput))
		_ = json.NewEncoder(w).Encode([]api.Result{{Label: "Speech", Score: 0.9},
			{Label: "Music", Score: 0.05}})
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	res, err := c.Classify(test.Ctx(t), []float32{0.1, 0.2}, 16000)
	require.Nil(t, err)
	require.Equal(t, 2, len(res))
	assert.Equal(t, "Speech", res[0].Label)
	assert.Equal(t, []float32{0.1, 0.2}, gotInput.Samples)
	assert.Equal(t, 16000, gotInput.SampleRate)
}

func Test_Classify_sortsByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.Result{{Label: "Music", Score: 0.1},
			{Label: "Speech", Score: 0.8}, {Label: "Silence", Score: 0.05}})
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	res, err := c.Classify(test.Ctx(t), []float32{0.1}, 16000)
	require.Nil(t, err)
	require.Equal(t, 3, len(res))
	assert.Equal(t, "Speech", res[0].Label)
	assert.Equal(t, "Music", res[1].Label)
	assert.Equal(t, "Silence", res[2].Label)
}

func Test_Classify_noSamples(t *testing.T) {
	c := initClient(t, "http://olia")
	_, err := c.Classify(test.Ctx(t), nil, 16000)
	assert.NotNil(t, err)
}

func Test_Classify_failsOnWrongCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "olia err", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	_, err := c.Classify(test.Ctx(t), []float32{0.1}, 16000)
	assert.NotNil(t, err)
}

func Test_Classify_failsOnEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.Result{})
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	_, err := c.Classify(test.Ctx(t), []float32{0.1}, 16000)
	assert.NotNil(t, err)
}

func Test_Classify_failsOnBadScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.Result{{Label: "Speech", Score: 1.5}})
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	_, err := c.Classify(test.Ctx(t), []float32{0.1}, 16000)
	assert.NotNil(t, err)
}

func Test_Classify_retries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]api.Result{{Label: "Speech", Score: 0.9}})
	}))
	defer srv.Close()

	c := initClient(t, srv.URL)
	c.backoff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	res, err := c.Classify(test.Ctx(t), []float32{0.1}, 16000)
	require.Nil(t, err)
	assert.Equal(t, "Speech", res[0].Label)
	assert.Equal(t, 2, calls)
}

func Test_validateResults(t *testing.T) {
	tests := []struct {
		name    string
		in      []api.Result
		wantErr bool
	}{
		{name: "ok", in: []api.Result{{Label: "a", Score: 0.5}}},
		{name: "empty", in: []api.Result{}, wantErr: true},
		{name: "no label", in: []api.Result{{Score: 0.5}}, wantErr: true},
		{name: "negative", in: []api.Result{{Label: "a", Score: -0.1}}, wantErr: true},
		{name: "above one", in: []api.Result{{Label: "a", Score: 1.1}}, wantErr: true},
		{name: "bounds", in: []api.Result{{Label: "a", Score: 0}, {Label: "b", Score: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateResults(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestNewClient(t *testing.T) {
	prov, err := StaticURL("http://olia")
	require.Nil(t, err)
	_, err = NewClient(nil, "yamnet")
	assert.NotNil(t, err)
	_, err = NewClient(prov, "")
	assert.NotNil(t, err)
	_, err = NewClient(prov, "yamnet")
	assert.Nil(t, err)
}

func TestStaticURL(t *testing.T) {
	_, err := StaticURL("")
	assert.NotNil(t, err)
	p, err := StaticURL("http://olia")
	require.Nil(t, err)
	res, err := p.Get(test.Ctx(t))
	require.Nil(t, err)
	assert.Equal(t, "http://olia", res)
}
