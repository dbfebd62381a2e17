package myhomefetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/contracts"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// statementsEnvelope mirrors the API response:
// {"result": true, "data": {"data": [...], "last_page": N}}.
type statementsEnvelope struct {
	Result bool           `json:"result"`
	Data   statementsPage `json:"data"`
}

type statementsPage struct {
	Data        []statementItem `json:"data"`
	CurrentPage int             `json:"current_page"`
	LastPage    int             `json:"last_page"`
}

type statementItem struct {
	ID               int64                    `json:"id"`
	DynamicTitle     string                   `json:"dynamic_title"`
	Title            string                   `json:"title"`
	Comment          string                   `json:"comment"`
	RealEstateTypeID int                      `json:"real_estate_type_id"`
	DealTypeID       int                      `json:"deal_type_id"`
	Price            map[string]priceEntry    `json:"price"`
	Address          string                   `json:"address"`
	CityName         string                   `json:"city_name"`
	DistrictName     string                   `json:"district_name"`
	UrbanName        string                   `json:"urban_name"`
	Lat              *float64                 `json:"lat"`
	Lng              *float64                 `json:"lng"`
	Area             looseScalar              `json:"area"`
	Room             looseScalar              `json:"room"`
	Bedroom          looseScalar              `json:"bedroom"`
	Bathroom         looseScalar              `json:"bathroom"`
	Floor            looseScalar              `json:"floor"`
	TotalFloors      looseScalar              `json:"total_floors"`
	UserTitle        string                   `json:"user_title"`
	UserType         *userTypeEntry           `json:"user_type"`
	StatementsCount  int                      `json:"statements_count"`
	Images           []imageEntry             `json:"images"`
	Parameters       []parameterEntry         `json:"parameters"`
	Amenities        []string                 `json:"amenities"`
}

// looseScalar accepts a number, a string ("10+"), or null; the API
// mixes all three for the same fields.
type looseScalar string

func (l *looseScalar) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = looseScalar(s)
		return nil
	}
	*l = looseScalar(b)
	return nil
}

func (l looseScalar) String() string { return string(l) }

type priceEntry struct {
	PriceTotal  float64 `json:"price_total"`
	PriceSquare float64 `json:"price_square"`
}

type userTypeEntry struct {
	Type string `json:"type"`
}

type imageEntry struct {
	Large  string `json:"large"`
	Thumb  string `json:"thumb"`
	IsMain bool   `json:"is_main"`
}

type parameterEntry struct {
	ID              int64  `json:"id"`
	Key             string `json:"key"`
	DisplayName     string `json:"display_name"`
	ParameterValue  string `json:"parameter_value"`
	ParameterSelect string `json:"parameter_select_name"`
}

func (a *MyhomeFetcherAdapter) buildPageURL(page int) (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("currency_id", "1")
	q.Set("page", strconv.Itoa(page))
	if a.pageSize > 0 {
		q.Set("per_page", strconv.Itoa(a.pageSize))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage retrieves one page of statements. Transient failures (429,
// 5xx, transport errors) are retried with exponential backoff up to
// the configured maximum; the final error surfaces to the caller.
func (a *MyhomeFetcherAdapter) FetchPage(ctx context.Context, cursor port.PageCursor) ([]domain.RawListing, *port.PageCursor, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "MyhomeFetcherAdapter(FetchPage)",
		"page":      cursor.Page,
	})

	targetURL, err := a.buildPageURL(cursor.Page)
	if err != nil {
		return nil, nil, fmt.Errorf("myhome adapter: failed to build page URL: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.run.Retried()
			select {
			case <-time.After(backoffDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		envelope, err := a.requestPage(ctx, targetURL, logger)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			logger.Warn("page request failed, will retry", port.Fields{
				"attempt": attempt + 1,
				"cause":   err.Error(),
			})
			continue
		}

		records := make([]domain.RawListing, 0, len(envelope.Data.Data))
		for _, item := range envelope.Data.Data {
			records = append(records, item.toRawListing())
		}

		var next *port.PageCursor
		if envelope.Data.LastPage == 0 || cursor.Page < envelope.Data.LastPage {
			next = &port.PageCursor{Page: cursor.Page + 1}
		}
		if len(records) == 0 {
			// An empty page is the end of the feed even when the API
			// claims more pages.
			return nil, nil, domain.ErrNoMorePages
		}
		return records, next, nil
	}

	return nil, &port.PageCursor{Page: cursor.Page + 1}, fmt.Errorf("myhome adapter: page %d failed after %d attempts: %w", cursor.Page, a.maxRetries+1, lastErr)
}

// httpStatusError marks a response status the retry loop cares about.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func isRetryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Transport-level failures are retryable by default.
	return true
}

func (a *MyhomeFetcherAdapter) requestPage(ctx context.Context, targetURL string, logger port.LoggerPort) (*statementsEnvelope, error) {
	collector := a.collector.Clone()

	var envelope statementsEnvelope
	var responseErr error
	decoded := false

	collector.OnRequest(func(r *colly.Request) {
		a.applyHeaders(r, "ka")
		logger.Debug("making statements request", port.Fields{"url": r.URL.String()})
	})

	collector.OnResponse(func(r *colly.Response) {
		if err := contracts.ValidateStatementsPayload(r.Body); err != nil {
			responseErr = fmt.Errorf("payload rejected by schema: %w", err)
			return
		}
		if err := json.Unmarshal(r.Body, &envelope); err != nil {
			responseErr = fmt.Errorf("failed to decode statements JSON: %w", err)
			return
		}
		if !envelope.Result {
			responseErr = fmt.Errorf("API returned result=false")
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

	if err := collector.Visit(targetURL); err != nil {
		return nil, err
	}
	collector.Wait()

	if responseErr != nil {
		return nil, responseErr
	}
	if !decoded {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return &envelope, nil
}

func (s statementItem) toRawListing() domain.RawListing {
	raw := domain.RawListing{
		ExternalID:       s.ID,
		Source:           constants.Source,
		Title:            firstNonEmpty(s.DynamicTitle, s.Title),
		Description:      s.Comment,
		RealEstateTypeID: s.RealEstateTypeID,
		DealTypeID:       s.DealTypeID,
		Prices:           make(map[int]domain.RawPrice, len(s.Price)),
		Address:          s.Address,
		City:             s.CityName,
		District:         s.DistrictName,
		UrbanArea:        s.UrbanName,
		Area:             s.Area.String(),
		Rooms:            s.Room.String(),
		Bedrooms:         s.Bedroom.String(),
		Bathrooms:        s.Bathroom.String(),
		Floor:            s.Floor.String(),
		TotalFloors:      s.TotalFloors.String(),
		SellerName:       s.UserTitle,
		StatementsCount:  s.StatementsCount,
		Amenities:        s.Amenities,
		FetchedAt:        time.Now().UTC(),
	}

	if s.Lat != nil && s.Lng != nil {
		raw.Latitude = *s.Lat
		raw.Longitude = *s.Lng
		raw.HasLocation = true
	}
	if s.UserType != nil {
		raw.UserType = s.UserType.Type
	}

	for code, p := range s.Price {
		id, err := strconv.Atoi(code)
		if err != nil {
			continue
		}
		raw.Prices[id] = domain.RawPrice{Total: p.PriceTotal, PerSquare: p.PriceSquare}
	}

	for _, img := range s.Images {
		raw.Images = append(raw.Images, domain.RawImage{
			LargeURL: img.Large,
			ThumbURL: img.Thumb,
			IsMain:   img.IsMain,
		})
	}

	for _, p := range s.Parameters {
		raw.Parameters = append(raw.Parameters, domain.RawParameter{
			ID:          p.ID,
			Key:         p.Key,
			Value:       p.ParameterValue,
			SelectName:  p.ParameterSelect,
			DisplayName: p.DisplayName,
		})
	}

	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
