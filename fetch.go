package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/go-querystring/query"
	"github.com/levigross/grequests"
	"golang.org/x/time/rate"
)

const (
	maxFetchAttempts = 4
	mirrorScheme     = "mirror:"
)

// Fetcher downloads remote sources. Requests are spaced by a shared rate
// limit and at most a fixed number run at once.
type Fetcher struct {
	limiter *rate.Limiter
	tokens  chan struct{}
	timeout time.Duration
	mirror  string
	key     string

	// backoff is the wait before retry n (from 1).
	backoff func(n int) time.Duration
}

func NewFetcher(cfg *Config) *Fetcher {
	return &Fetcher{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Fetch.PerMinute)), 1),
		tokens:  make(chan struct{}, cfg.Fetch.Concurrent),
		timeout: cfg.Fetch.Timeout,
		mirror:  cfg.Fetch.Mirror,
		key:     cfg.Fetch.Key,
		backoff: func(n int) time.Duration { return min(time.Minute, time.Second<<n) },
	}
}

func isRemote(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, mirrorScheme)
}

type mirrorQuery struct {
	Key string `url:"key,omitempty"`
	ID  string `url:"id"`
}

// resolve turns "mirror:<id>" into a request on the configured mirror.
func (f *Fetcher) resolve(input string) (string, error) {
	id, ok := strings.CutPrefix(input, mirrorScheme)
	if !ok {
		return input, nil
	}
	if f.mirror == "" {
		return "", fmt.Errorf("%s: no fetch.mirror configured", input)
	}
	v, err := query.Values(mirrorQuery{Key: f.key, ID: id})
	if err != nil {
		return "", err
	}
	u, err := url.Parse(f.mirror)
	if err != nil {
		return "", fmt.Errorf("fetch.mirror: %w", err)
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// acquire takes a download slot, or fails once ctx is done.
func (f *Fetcher) acquire(ctx context.Context) (func(), error) {
	select {
	case f.tokens <- struct{}{}:
		return func() { <-f.tokens }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch downloads input and returns the sources it holds: the file itself,
// or the known members of a zip archive. Throttled and 5xx responses are
// retried with backoff.
func (f *Fetcher) Fetch(ctx context.Context, input string) ([]Source, error) {
	target, err := f.resolve(input)
	if err != nil {
		return nil, err
	}
	release, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 1; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		name, data, wait, err := f.get(ctx, target, attempt)
		if err == nil {
			log.Printf("[fetch] %s: %s", input, humanize.Bytes(uint64(len(data))))
			if name == "" {
				name = path.Base(strings.TrimPrefix(input, mirrorScheme))
			}
			return expand(Source{Name: name, Data: data})
		}
		if wait == 0 || attempt >= maxFetchAttempts {
			return nil, fmt.Errorf("fetch %s: %w", input, err)
		}
		log.Printf("[fetch] %s: %v, retrying in %s", input, err, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// get performs one request. A non-zero retry is the wait before the next
// attempt; zero means the failure is final.
func (f *Fetcher) get(ctx context.Context, target string, attempt int) (name string, data []byte, retry time.Duration, err error) {
	resp, err := grequests.Get(target,
		grequests.Context(ctx),
		grequests.RequestTimeout(f.timeout),
		grequests.UserAgent("synthmap"),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, 0, err
		}
		return "", nil, f.backoff(attempt), err
	}
	defer resp.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", nil, max(f.backoff(attempt), retryAfter(resp.Header)), fmt.Errorf("status %d", resp.StatusCode)
	case !resp.Ok:
		return "", nil, 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	data = resp.Bytes()
	if resp.Error != nil {
		return "", nil, f.backoff(attempt), resp.Error
	}
	return attachmentName(resp.Header, target, data), data, 0, nil
}

// attachmentName picks the file name of a response: the Content-Disposition
// filename, else the last path element of the URL or its id parameter. Zip
// payloads without a known extension get ".zip" appended.
func attachmentName(h http.Header, target string, data []byte) string {
	var name string
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		name = path.Base(params["filename"])
	}
	if name == "" || name == "." || name == "/" {
		if u, err := url.Parse(target); err == nil {
			name = path.Base(u.Path)
			if id := u.Query().Get("id"); id != "" && !isSource(name) && !isArchive(name) {
				name = id
			}
		}
	}
	if name == "" || name == "." || name == "/" {
		return ""
	}
	if !isSource(name) && !isArchive(name) && bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		name += ".zip"
	}
	return name
}

func isArchive(name string) bool {
	return strings.EqualFold(path.Ext(name), ".zip")
}

// expand returns src itself, or the known-format members of src when it is
// a zip archive.
func expand(src Source) ([]Source, error) {
	if !isArchive(src.Name) {
		return []Source{src}, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", src.Name, err)
	}
	var out []Source
	for _, file := range zr.File {
		if file.FileInfo().IsDir() || !isSource(file.Name) {
			continue
		}
		data, err := readMember(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name, err)
		}
		out = append(out, Source{Name: src.Name + "/" + file.Name, Data: data})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("archive %s: no chart files: %w", src.Name, ErrUnknownFormat)
	}
	return out, nil
}

func readMember(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Name, err)
	}
	return data, nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
