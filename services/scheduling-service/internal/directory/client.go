package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/availability"
)

// ErrConsultantNotFound is returned when the directory has no active
// consultant with the given id.
var ErrConsultantNotFound = errors.New("consultant not found")

// DayAvailability is a consultant's working plan for one calendar day,
// already reduced by blackouts on the directory side.
type DayAvailability struct {
	Windows      []availability.Interval
	SlotStepMins int
	SessionMins  int
	Working      bool
}

// Provider answers availability questions about consultants. Implemented by
// the directory-service HTTP client and by fakes in tests.
type Provider interface {
	DayAvailability(ctx context.Context, consultantID string, day time.Time) (DayAvailability, error)
}

// Client talks to the directory-service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type dayAvailabilityResponse struct {
	Working     bool   `json:"working"`
	SlotStep    int    `json:"slot_step_mins"`
	SessionMins int    `json:"session_mins"`
	Windows     []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"windows"`
}

// DayAvailability fetches the consultant's availability windows for a day.
// The read is idempotent, so a transient failure is retried once.
func (c *Client) DayAvailability(ctx context.Context, consultantID string, day time.Time) (DayAvailability, error) {
	u := fmt.Sprintf("%s/api/v1/consultants/availability?consultant_id=%s&date=%s",
		c.baseURL, url.QueryEscape(consultantID), day.Format("2006-01-02"))

	resp, err := c.get(ctx, u)
	if err != nil {
		return DayAvailability{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return DayAvailability{}, ErrConsultantNotFound
	default:
		return DayAvailability{}, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var body dayAvailabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return DayAvailability{}, fmt.Errorf("decode availability: %w", err)
	}

	out := DayAvailability{
		Working:      body.Working,
		SlotStepMins: body.SlotStep,
		SessionMins:  body.SessionMins,
	}
	for _, w := range body.Windows {
		out.Windows = append(out.Windows, availability.Interval{Start: w.Start, End: w.End})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("directory returned status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
