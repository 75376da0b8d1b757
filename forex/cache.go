package forex

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"

	"github.com/jffcastro/assetflow/date"
	"github.com/sirupsen/logrus"
)

// diskCache implements a simple disk cache for HTTP responses.
type diskCache struct {
	base http.RoundTripper
	dir  string
	log  logrus.FieldLogger
}

// key returns the cache file name of req. Requests for the latest rates get
// a new key every day.
func (c *diskCache) key(req *http.Request) string {
	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())
	if strings.HasSuffix(req.URL.Path, "/latest") {
		key = date.Today().String() + " " + key
	}
	return fmt.Sprintf("forex-%x", sha1.Sum([]byte(key)))
}

func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	key := c.key(req)
	if cached, err := c.get(key, req); err == nil { // Cache hit
		return cached, nil
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	// otherwise attempt to store it in cache
	if err := c.put(key, resp); err != nil {
		c.log.WithError(err).Warn("cache write error (ignored)")
	}
	return resp, nil
}

// get retrieves a cached response from disk
func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewBuffer(content)), req)
}

// put stores a response to disk cache
func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), content, 0o644)
}
