package export

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"deckflow/internal/cache"
)

// Prober decides whether a remote image can be fetched. Decisions are cached
// so that repeated probes of the same URL agree.
type Prober struct {
	Client  *http.Client
	Cache   cache.Client
	TTL     time.Duration
	Retries int
	log     *logrus.Entry
}

func NewProber(timeout time.Duration, retries int, c cache.Client, ttl time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		Client:  &http.Client{Timeout: timeout},
		Cache:   c,
		TTL:     ttl,
		Retries: retries,
		log:     logrus.WithField("component", "prober"),
	}
}

var errUnreachable = errors.New("asset unreachable")

func cacheKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Reachable reports whether url answered with a 2xx status.
func (p *Prober) Reachable(ctx context.Context, url string) bool {
	key := cacheKey(url)
	if p.Cache != nil {
		if v, err := p.Cache.Get(ctx, key); err == nil && len(v) == 1 {
			return v[0] == '1'
		} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			p.log.WithError(err).Debug("probe cache read failed")
		}
	}

	ok := p.probe(ctx, url)
	// a cancelled probe says nothing about the asset
	if ctx.Err() != nil {
		return ok
	}
	if p.Cache != nil {
		v := []byte{'0'}
		if ok {
			v[0] = '1'
		}
		if err := p.Cache.Set(ctx, key, v, p.TTL); err != nil {
			p.log.WithError(err).Debug("probe cache write failed")
		}
	}
	return ok
}

func (p *Prober) probe(ctx context.Context, url string) bool {
	op := func() error {
		status, err := p.request(ctx, http.MethodHead, url)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusForbidden, http.StatusMethodNotAllowed, http.StatusNotImplemented:
			// some hosts refuse HEAD
			status, err = p.request(ctx, http.MethodGet, url)
			if err != nil {
				return err
			}
		}
		if status >= 200 && status < 300 {
			return nil
		}
		if status >= 500 {
			return fmt.Errorf("%w: status %d", errUnreachable, status)
		}
		return backoff.Permanent(fmt.Errorf("%w: status %d", errUnreachable, status))
	}

	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(0),
	)
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.Retries, 0))), ctx)

	err := backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		p.log.WithField("url", url).WithError(err).Debugf("retrying probe in %s", d)
	})
	if err != nil {
		p.log.WithField("url", url).WithError(err).Warn("image not reachable")
		return false
	}
	return true
}

func (p *Prober) request(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return resp.StatusCode, nil
}
