// Package pd is the outbound HTTP client for the Placement Director: region
// queries, table-regions queries, and operator submission (spec §6 "PD
// (outbound)"). It mirrors the teacher CLI's fetch-decode-classify shape
// (cmd/arena-cache-inspect/main.go: http.NewRequestWithContext, status-code
// check, json.Decode) generalized into a reusable client with a configurable
// timeout.
//
// © 2025 hotregion authors. MIT License.
package pd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PdFetchError wraps a network or HTTP-status failure contacting PD.
type PdFetchError struct {
	URL string
	Err error
}

func (e *PdFetchError) Error() string { return fmt.Sprintf("pd: fetch %s: %v", e.URL, e.Err) }
func (e *PdFetchError) Unwrap() error { return e.Err }

// PdDecodeError wraps a JSON-decode failure on a PD response body.
type PdDecodeError struct {
	URL string
	Err error
}

func (e *PdDecodeError) Error() string { return fmt.Sprintf("pd: decode %s: %v", e.URL, e.Err) }
func (e *PdDecodeError) Unwrap() error { return e.Err }

// ErrOperatorRejected is returned when PD answers an operator submission
// with a non-200 status or with a body carrying a failure marker ("Fail" or
// "500").
var ErrOperatorRejected = errors.New("pd: operator rejected")

// Peer is a replica of a region, possibly carrying a learner role marker.
type Peer struct {
	ID       uint64 `json:"id"`
	StoreID  uint64 `json:"store_id"`
	RoleName string `json:"role_name,omitempty"`
}

// RegionInfo is the decoded shape of a PD region-query or table-regions
// response element: `{leader:{id,store_id}, peers:[{id,store_id,role_name?}]}`.
type RegionInfo struct {
	RegionID uint64 `json:"region_id"`
	Leader   Peer   `json:"leader"`
	Peers    []Peer `json:"peers"`
}

// tableRegionsResponse is the envelope around a table-regions query.
type tableRegionsResponse struct {
	RecordRegions []RegionInfo `json:"record_regions"`
}

// OperatorKind names the four PD operator commands spec §6 externally
// equates to `pd-ctl operator add <kind> <args...>`.
type OperatorKind string

const (
	OpTransferLeader OperatorKind = "transfer-leader"
	OpTransferPeer   OperatorKind = "transfer-peer"
	OpAddPeer        OperatorKind = "add-peer"
	OpRemovePeer     OperatorKind = "remove-peer"
)

// Operator is one PD operator command to submit.
type Operator struct {
	Kind     OperatorKind
	RegionID uint64
	From     uint64 // only for TransferPeer
	To       uint64
}

// OperatorSubmitter is the dispatcher's view of a PD client: spec §4.6 calls
// the operator invocation mechanism "an injected dependency — subprocess,
// HTTP, whatever". Dispatcher depends on this interface, not *Client, so
// tests can substitute a fake.
type OperatorSubmitter interface {
	SubmitOperator(ctx context.Context, op Operator) error
}

// RegionFetcher is the dispatcher's view of PD for peer reconciliation.
type RegionFetcher interface {
	RegionByID(ctx context.Context, regionID uint64) (*RegionInfo, error)
}

// Client is an outbound PD HTTP client with a configurable timeout.
type Client struct {
	baseURL string
	hc      *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New constructs a Client against baseURL (e.g. "http://pd:2379") with the
// given per-request timeout. Spec §5 leaves the default unspecified;
// implementers choose one — this client defaults to 10s.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegionByID issues GET {pd}/pd/api/v1/region/id/{id} — used by the
// dispatcher's peer-reconciliation step.
func (c *Client) RegionByID(ctx context.Context, regionID uint64) (*RegionInfo, error) {
	url := fmt.Sprintf("%s/pd/api/v1/region/id/%d", c.baseURL, regionID)
	var info RegionInfo
	if err := c.getJSON(ctx, url, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TableRegions issues GET {pd}/tables/{db}/{table}/regions, used by Route
// refresh.
func (c *Client) TableRegions(ctx context.Context, db, table string) ([]RegionInfo, error) {
	url := fmt.Sprintf("%s/tables/%s/%s/regions", c.baseURL, db, table)
	var resp tableRegionsResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.RecordRegions, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &PdFetchError{URL: url, Err: err}
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return &PdFetchError{URL: url, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &PdFetchError{URL: url, Err: fmt.Errorf("unexpected status %s", res.Status)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &PdDecodeError{URL: url, Err: err}
	}
	return nil
}

// SubmitOperator submits op via the operator-add equivalent described in
// spec §6. Success requires status 200 AND a body containing neither "Fail"
// nor "500"; a response failing that check returns ErrOperatorRejected
// wrapped with the response body for logging, while a failure to build or
// send the request returns a *PdFetchError.
func (c *Client) SubmitOperator(ctx context.Context, op Operator) error {
	url := fmt.Sprintf("%s/pd/api/v1/operators", c.baseURL)
	payload := operatorPayload(op)
	body, err := json.Marshal(payload)
	if err != nil {
		return &PdFetchError{URL: url, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return &PdFetchError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return &PdFetchError{URL: url, Err: err}
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	text := string(raw)
	if res.StatusCode != http.StatusOK || strings.Contains(text, "Fail") || strings.Contains(text, "500") {
		c.logger.Warn("pd operator rejected", zap.String("kind", string(op.Kind)), zap.Uint64("region", op.RegionID), zap.String("body", text))
		return fmt.Errorf("%w: %s", ErrOperatorRejected, text)
	}
	return nil
}

func operatorPayload(op Operator) map[string]any {
	switch op.Kind {
	case OpTransferLeader:
		return map[string]any{"name": string(op.Kind), "region_id": op.RegionID, "to_store_id": op.To}
	case OpTransferPeer:
		return map[string]any{"name": string(op.Kind), "region_id": op.RegionID, "from_store_id": op.From, "to_store_id": op.To}
	case OpAddPeer, OpRemovePeer:
		return map[string]any{"name": string(op.Kind), "region_id": op.RegionID, "store_id": op.To}
	default:
		return map[string]any{"name": string(op.Kind), "region_id": op.RegionID}
	}
}
