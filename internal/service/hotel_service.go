package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tripsync/internal/config"
	"tripsync/pkg/logger"
	"tripsync/pkg/redis"
)

// Lookup errors reported in the response body rather than as HTTP failures
const (
	HotelErrAppIDMissing   = "App ID missing"
	HotelErrKeywordMissing = "Keyword missing"
)

// HotelLookupResult is the answer of a hotel id lookup. ID is nil when
// nothing was found or the upstream call failed.
type HotelLookupResult struct {
	ID    *string `json:"id"`
	Error string  `json:"error,omitempty"`
}

// keywordSearchResponse is the part of the travel API payload we read
type keywordSearchResponse struct {
	Hotels []struct {
		Hotel []struct {
			HotelBasicInfo *struct {
				HotelNo json.Number `json:"hotelNo"`
			} `json:"hotelBasicInfo,omitempty"`
		} `json:"hotel"`
	} `json:"hotels"`
}

// HotelService resolves a hotel name to the travel provider's hotel number
type HotelService struct {
	config     *config.Config
	httpClient *http.Client
	cache      *redis.Client
	logger     *logger.Logger
}

// NewHotelService creates a new hotel service. cache may be nil.
func NewHotelService(cfg *config.Config, cache *redis.Client, logger *logger.Logger) *HotelService {
	return &HotelService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HotelLookupTimeout,
		},
		cache:  cache,
		logger: logger,
	}
}

// Lookup returns the first hotel matching keyword. Upstream failures are
// logged and reported as "not found"; only missing input is an error result.
func (h *HotelService) Lookup(ctx context.Context, keyword string) HotelLookupResult {
	if h.config.RakutenAppID == "" {
		h.logger.Error("Hotel lookup is not configured: RAKUTEN_APP_ID is empty")
		return HotelLookupResult{Error: HotelErrAppIDMissing}
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return HotelLookupResult{Error: HotelErrKeywordMissing}
	}

	log := h.logger.WithField("keyword", keyword)

	var cacheKey string
	if h.cache != nil {
		cacheKey = h.cache.KeyBuilder.KeyHotelLookup(keyword)
		var cached HotelLookupResult
		err := h.cache.GetJSON(ctx, cacheKey, &cached)
		switch {
		case err == nil:
			log.Debug("Hotel lookup cache hit")
			return cached
		case !errors.Is(err, redis.ErrCacheMiss):
			log.WithError(err).Warn("Hotel lookup cache error, calling upstream")
		}
	}

	id, err := h.search(ctx, keyword)
	if err != nil {
		log.WithError(err).Warn("Hotel lookup failed")
		return HotelLookupResult{}
	}

	result := HotelLookupResult{ID: id}
	if h.cache != nil {
		// Cache the result asynchronously (fire and forget)
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.cache.SetJSON(cacheCtx, cacheKey, result, redis.TTLHotelLookup); err != nil {
				log.WithError(err).Warn("Failed to cache hotel lookup")
			}
		}()
	}
	return result
}

func (h *HotelService) search(ctx context.Context, keyword string) (*string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("keyword", keyword)
	params.Set("applicationId", h.config.RakutenAppID)
	params.Set("hits", "1")

	endpoint := fmt.Sprintf("%s/services/api/Travel/KeywordHotelSearch/20170426?%s", h.config.RakutenBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call hotel search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hotel search returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload keywordSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(payload.Hotels) == 0 || len(payload.Hotels[0].Hotel) == 0 {
		return nil, nil
	}
	info := payload.Hotels[0].Hotel[0].HotelBasicInfo
	if info == nil || info.HotelNo == "" {
		return nil, nil
	}
	id := info.HotelNo.String()
	return &id, nil
}
