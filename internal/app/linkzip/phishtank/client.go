package phishtank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultBaseURL = "http://data.phishtank.com/data"

// Anonymous PHISHTANK=anonymous 时不带 key 下载
const Anonymous = "anonymous"

// Entry online-valid.json 里的一条，只解析用得到的字段
type Entry struct {
	ID        int64  `json:"phish_id"`
	URL       string `json:"url"`
	DetailURL string `json:"phish_detail_url"`
}

// UnmarshalJSON phish_id 有时是数字有时是字符串，两种都收
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.Number `json:"phish_id"`
		URL       string      `json:"url"`
		DetailURL string      `json:"phish_detail_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := strconv.ParseInt(raw.ID.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("phish_id %q: %w", raw.ID, err)
	}
	*e = Entry{ID: id, URL: raw.URL, DetailURL: raw.DetailURL}
	return nil
}

type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("phishtank: unexpected status %s", e.Status)
}

type Client struct {
	BaseURL string
	// APIKey 为空或 anonymous 时走匿名地址
	APIKey string
	// UserAgent PhishTank 要求 phishtank/<用户名>
	UserAgent string
	HTTP      *http.Client
}

func NewClient(apiKey, apiName string) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "phishtank/" + apiName,
		HTTP: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) feedURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.APIKey != "" && c.APIKey != Anonymous {
		base += "/" + c.APIKey
	}
	return base + "/online-valid.json"
}

// Fetch 下载全量列表，边解码边回调 fn，不把整个 JSON 读进内存。
// 返回回调过的条数。
func (c *Client) Fetch(ctx context.Context, fn func(Entry) error) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	// 自己设置了 Accept-Encoding，Transport 就不会自动解压
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("phishtank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("phishtank: gzip: %w", err)
		}
		defer zr.Close()
		body = zr
	}
	return decodeEntries(body, fn)
}

var errNotArray = errors.New("phishtank: response is not a JSON array")

func decodeEntries(r io.Reader, fn func(Entry) error) (int, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("phishtank: decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return 0, errNotArray
	}

	n := 0
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return n, fmt.Errorf("phishtank: decode entry %d: %w", n, err)
		}
		if err := fn(e); err != nil {
			return n, err
		}
		n++
	}
	if _, err := dec.Token(); err != nil {
		return n, fmt.Errorf("phishtank: decode: %w", err)
	}
	return n, nil
}
