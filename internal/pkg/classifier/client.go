package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/moodsense/moody/internal/pkg/classifier/api"
)

// URLProvider resolves the classifier service base URL
type URLProvider interface {
	Get(ctx context.Context) (string, error)
}

type staticURL string

func (s staticURL) Get(ctx context.Context) (string, error) {
	return string(s), nil
}

// StaticURL wraps a fixed base URL into a URLProvider
func StaticURL(url string) (URLProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("no url")
	}
	return staticURL(url), nil
}

// Client communicates with a classifier inference service
type Client struct {
	httpclient *http.Client
	urls       URLProvider
	model      string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a classifier client.
// model is used for logging only, the served model is the service's business.
func NewClient(urls URLProvider, model string) (*Client, error) {
	if urls == nil {
		return nil, fmt.Errorf("no url provider")
	}
	if model == "" {
		return nil, fmt.Errorf("no model name")
	}
	res := Client{}
	res.urls = urls
	res.model = model
	res.timeout = time.Second * 50
	res.httpclient = &http.Client{Transport: &http.Transport{MaxIdleConns: 10,
		IdleConnTimeout: 90 * time.Second}}
	res.backoff = newSimpleBackoff
	return &res, nil
}

// Classify runs the remote model on the waveform.
// Returns the ranked label/score list, non empty on success.
func (c *Client) Classify(ctx context.Context, samples []float32, sampleRate int) ([]api.Result, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples")
	}
	inp, err := json.Marshal(api.ClassifyInput{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		return nil, fmt.Errorf("can't marshal input: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() ([]api.Result, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		urlStr, err := c.urls.Get(ctx)
		if err != nil {
			return nil, true, fmt.Errorf("can't get classifier URL: %w", err)
		}
		req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/classify", urlStr), bytes.NewReader(inp))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s' (%s): %w", req.URL.String(), c.model, err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		var res []api.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, false, fmt.Errorf("can't unmarshal: %w", err)
		}
		res, err = validateResults(res)
		if err != nil {
			return nil, false, fmt.Errorf("bad %s response: %w", c.model, err)
		}
		return res, false, nil
	}, c.backoff())
}

// validateResults enforces the classifier contract:
// non empty, probability scores, ranked by descending score
func validateResults(in []api.Result) ([]api.Result, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("empty result list")
	}
	for _, r := range in {
		if r.Label == "" {
			return nil, fmt.Errorf("empty label")
		}
		if r.Score < 0 || r.Score > 1 {
			return nil, fmt.Errorf("score out of [0, 1] for '%s': %f", r.Label, r.Score)
		}
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Score > in[j].Score })
	return in, nil
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.InitialInterval = time.Second * 2
	return backoff.WithMaxRetries(res, 3)
}
