package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

// LumaService reads calendars through the Luma public API.
type LumaService struct {
	client  *http.Client
	baseURL string
}

func NewLumaService(client *http.Client, baseURL string) *LumaService {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = constants.LUMA_DEFAULT_API_BASE_URL
	}
	return &LumaService{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *LumaService) Provider() string {
	return constants.PROVIDER_LUMA
}

// FetchEvents returns every event of the calendar, each with its guests when attendee
// sync is enabled.
func (s *LumaService) FetchEvents(ctx context.Context, cal types.CalendarConfig, flags types.FeatureFlags) ([]types.RawEventBundle, error) {
	events, err := s.ListEvents(ctx, cal)
	if err != nil {
		return nil, err
	}

	bundles := make([]types.RawEventBundle, 0, len(events))
	for i := range events {
		bundle := types.RawEventBundle{
			Provider: constants.PROVIDER_LUMA,
			Luma:     &events[i],
		}
		if flags.AttendeeSync {
			guests, err := s.ListGuests(ctx, cal, events[i].APIID)
			if err != nil {
				return nil, err
			}
			bundle.Guests = guests
		}
		bundles = append(bundles, bundle)
	}

	log.Printf("luma calendar %s: fetched %d events", cal.ID, len(bundles))
	return bundles, nil
}

func (s *LumaService) ListEvents(ctx context.Context, cal types.CalendarConfig) ([]types.LumaEvent, error) {
	var events []types.LumaEvent
	err := s.paginate(ctx, cal, constants.LUMA_LIST_EVENTS_PATH, url.Values{}, func(body []byte) (string, bool, error) {
		var page types.LumaListEventsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return "", false, err
		}
		for _, entry := range page.Entries {
			events = append(events, entry.Event)
		}
		return page.NextCursor, page.HasMore, nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *LumaService) ListGuests(ctx context.Context, cal types.CalendarConfig, eventAPIID string) ([]types.LumaGuest, error) {
	query := url.Values{}
	query.Set("event_api_id", eventAPIID)

	var guests []types.LumaGuest
	err := s.paginate(ctx, cal, constants.LUMA_GET_GUESTS_PATH, query, func(body []byte) (string, bool, error) {
		var page types.LumaGuestsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return "", false, err
		}
		for _, entry := range page.Entries {
			guest := entry.Guest
			if guest.EventAPIID == "" {
				guest.EventAPIID = eventAPIID
			}
			guests = append(guests, guest)
		}
		return page.NextCursor, page.HasMore, nil
	})
	if err != nil {
		return nil, err
	}
	return guests, nil
}

// paginate walks next_cursor until has_more is false. decode returns the next cursor
// and whether more pages exist.
func (s *LumaService) paginate(ctx context.Context, cal types.CalendarConfig, path string, query url.Values, decode func([]byte) (string, bool, error)) error {
	cursor := ""
	seen := map[string]bool{}
	for {
		pageQuery := url.Values{}
		for k, v := range query {
			pageQuery[k] = v
		}
		pageQuery.Set("pagination_limit", strconv.Itoa(constants.LUMA_PAGE_SIZE))
		if cursor != "" {
			pageQuery.Set("pagination_cursor", cursor)
		}

		body, err := s.get(ctx, cal, path, pageQuery)
		if err != nil {
			return err
		}

		next, hasMore, err := decode(body)
		if err != nil {
			return types.NewInvalidPayload(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("decoding %s: %w", path, err))
		}
		if !hasMore {
			return nil
		}
		if next == "" || seen[next] {
			return types.NewInvalidPayload(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("%s reported more pages without a new cursor", path))
		}
		seen[next] = true
		cursor = next
	}
}

func (s *LumaService) get(ctx context.Context, cal types.CalendarConfig, path string, query url.Values) ([]byte, error) {
	reqURL := s.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set(constants.LUMA_API_KEY_HEADER, cal.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("reading %s: %w", path, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewSourceUnavailable(constants.PROVIDER_LUMA, cal.ID, fmt.Errorf("GET %s returned %d", path, resp.StatusCode))
	}
	return body, nil
}

// ParseLumaWebhook decodes and validates a webhook envelope. It makes no network call.
func ParseLumaWebhook(body []byte) (*types.LumaWebhookPayload, error) {
	var payload types.LumaWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("webhook body: %w", err))
	}
	if err := validate.Struct(payload); err != nil {
		return nil, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("webhook validation failed: %w", err))
	}
	return &payload, nil
}

func DecodeLumaWebhookEvent(payload *types.LumaWebhookPayload) (*types.LumaEvent, error) {
	var ev types.LumaEvent
	if err := json.Unmarshal(payload.Data, &ev); err != nil {
		return nil, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("webhook %s data: %w", payload.Type, err))
	}
	return &ev, nil
}

func DecodeLumaWebhookGuest(payload *types.LumaWebhookPayload) (*types.LumaGuest, error) {
	var guest types.LumaGuest
	if err := json.Unmarshal(payload.Data, &guest); err != nil {
		return nil, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("webhook %s data: %w", payload.Type, err))
	}
	if guest.EventAPIID == "" {
		return nil, types.NewInvalidPayload(constants.PROVIDER_LUMA, "", fmt.Errorf("webhook %s guest %s has no event_api_id", payload.Type, guest.APIID))
	}
	return &guest, nil
}
