package myhomefetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

type statementDetailEnvelope struct {
	Result bool          `json:"result"`
	Data   statementItem `json:"data"`
}

// FetchTranslation re-fetches a single statement under the target
// locale and returns its localized text fields.
func (a *MyhomeFetcherAdapter) FetchTranslation(ctx context.Context, externalID string, locale string) (domain.Translation, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "MyhomeFetcherAdapter(FetchTranslation)",
		"external_id": externalID,
		"locale":      locale,
	})

	if err := a.limiter.Wait(ctx); err != nil {
		return domain.Translation{}, err
	}

	collector := a.collector.Clone()

	var envelope statementDetailEnvelope
	var responseErr error
	decoded := false

	collector.OnRequest(func(r *colly.Request) {
		a.applyHeaders(r, locale)
		logger.Debug("making statement detail request", port.Fields{"url": r.URL.String()})
	})

	collector.OnResponse(func(r *colly.Response) {
		if err := json.Unmarshal(r.Body, &envelope); err != nil {
			responseErr = fmt.Errorf("failed to decode statement detail JSON: %w", err)
			return
		}
		if !envelope.Result {
			responseErr = fmt.Errorf("API returned result=false for statement %s", externalID)
			return
		}
		decoded = true
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			responseErr = &httpStatusError{status: r.StatusCode}
			return
		}
		responseErr = err
	})

	targetURL := strings.TrimRight(a.baseURL, "/") + "/" + externalID
	if err := collector.Visit(targetURL); err != nil {
		return domain.Translation{}, err
	}
	collector.Wait()

	if responseErr != nil {
		return domain.Translation{}, responseErr
	}
	if !decoded {
		return domain.Translation{}, fmt.Errorf("no response received for statement %s", externalID)
	}

	item := envelope.Data
	return domain.Translation{
		Locale:      locale,
		Title:       strings.TrimSpace(firstNonEmpty(item.DynamicTitle, item.Title)),
		Description: strings.TrimSpace(item.Comment),
		Address:     strings.TrimSpace(item.Address),
	}, nil
}
