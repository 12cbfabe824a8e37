package searcher

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medialib/scenesearch/pkg/types"
)

const defaultCacheCapacity = 1000

// cacheEntry is a cached response with its expiry.
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// queryCache is an LRU of query responses with per-entry TTL. Expired
// entries are dropped on lookup.
type queryCache struct {
	mu  sync.RWMutex
	lru *lru.Cache[[32]byte, *cacheEntry]
}

func newQueryCache(capacity int) *queryCache {
	cache, err := lru.New[[32]byte, *cacheEntry](capacity)
	if err != nil {
		// Only reachable with a non-positive capacity.
		panic(fmt.Sprintf("query cache: %v", err))
	}
	return &queryCache{lru: cache}
}

func (c *queryCache) get(query string, opts *Options) (*Response, bool) {
	key := cacheKey(query, opts)

	c.mu.RLock()
	entry, ok := c.lru.Get(key)
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.RUnlock()
		c.mu.Lock()
		c.lru.Remove(key)
		c.mu.Unlock()
		return nil, false
	}
	resp := copyResponse(entry.response)
	c.mu.RUnlock()
	return resp, true
}

func (c *queryCache) put(query string, opts *Options, resp *Response) {
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(opts.CacheTTL),
	}
	c.mu.Lock()
	c.lru.Add(cacheKey(query, opts), entry)
	c.mu.Unlock()
}

func (c *queryCache) purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// cacheKey hashes every option that affects ranking. Cache settings
// themselves are excluded.
func cacheKey(query string, opts *Options) [32]byte {
	var b strings.Builder
	b.WriteString(query)
	fmt.Fprintf(&b, "|%s|%.4f|%.4f|%.1f|%d|%d|%d",
		opts.Mode, opts.KeywordWeight, opts.VectorWeight, opts.RRFConstant,
		opts.KeywordTopK, opts.VectorTopK, opts.MaxResults)
	fmt.Fprintf(&b, "|%s|%d|%.4f", opts.MediaType, opts.MediaID, opts.MinConfidence)
	fmt.Fprintf(&b, "|%t|%t|%t",
		opts.IncludeSubtitles, opts.IncludeTranscription, opts.IncludeMetadata)
	fmt.Fprintf(&b, "|%s|%d|%d|%s|%d|%d",
		strings.Join(opts.Genres, ","), opts.MinYear, opts.MaxYear,
		opts.MPAARating, opts.MinDurationMinutes, opts.MaxDurationMinutes)
	return sha256.Sum256([]byte(b.String()))
}

// copyResponse deep-copies a response so cached entries are immune to
// caller mutation.
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		Mode:              src.Mode,
		Duration:          src.Duration,
		CacheHit:          src.CacheHit,
		KeywordHits:       src.KeywordHits,
		VectorHits:        src.VectorHits,
		DegradedToKeyword: src.DegradedToKeyword,
		Results:           make([]types.SearchResult, len(src.Results)),
	}
	if len(src.FiltersNotApplied) > 0 {
		dst.FiltersNotApplied = append([]string(nil), src.FiltersNotApplied...)
	}
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.Chunk != nil {
			chunkCopy := *r.Chunk
			dst.Results[i].Chunk = &chunkCopy
		}
	}
	return dst
}
