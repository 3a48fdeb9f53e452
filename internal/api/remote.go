package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/domain"

	"github.com/valyala/fasthttp"
)

// RemoteStore is the access-key scoped battle stats backend.
type RemoteStore interface {
	Load(ctx context.Context, accessKey string) (*domain.Snapshot, error)
	Save(ctx context.Context, accessKey string, snap domain.Snapshot, playerID string) error
	Clear(ctx context.Context, accessKey string) error
	DeleteBattle(ctx context.Context, accessKey, arenaID string) error
}

type RemoteClient struct {
	baseURL string
	client  *fasthttp.Client
}

func NewRemoteClient(cfg *config.Config) *RemoteClient {
	return &RemoteClient{
		baseURL: cfg.RemoteBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

type loadResponse struct {
	Success     bool                   `json:"success"`
	BattleStats json.RawMessage        `json:"BattleStats"`
	PlayerInfo  domain.PlayerDirectory `json:"PlayerInfo"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *RemoteClient) statsURL(accessKey string) string {
	return fmt.Sprintf("%s/battle-stats/%s", c.baseURL, url.PathEscape(accessKey))
}

func (c *RemoteClient) Load(ctx context.Context, accessKey string) (*domain.Snapshot, error) {
	resp, err := doRequest[loadResponse](ctx, c, fasthttp.MethodGet, c.statsURL(accessKey), nil, nil)
	if err != nil {
		return nil, &domain.TransientError{Op: "load", Err: err}
	}
	if !resp.Success {
		return nil, &domain.TransientError{Op: "load", Err: fmt.Errorf("remote reported failure")}
	}
	battles, err := decodeBattles(resp.BattleStats)
	if err != nil {
		return nil, &domain.TransientError{Op: "load", Err: err}
	}
	return &domain.Snapshot{Battles: battles, Players: resp.PlayerInfo}, nil
}

// decodeBattles applies the import record checks to the remote collection.
// One malformed record rejects the whole body. Absent or null means the
// field was not sent.
func decodeBattles(raw json.RawMessage) (map[string]*domain.BattleRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	entries, err := domain.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed BattleStats: %w", err)
	}
	battles := make(map[string]*domain.BattleRecord, len(entries))
	for id, v := range entries {
		rec, err := domain.ParseBattleRecord(v)
		if err != nil {
			return nil, fmt.Errorf("malformed battle %s: %w", id, err)
		}
		battles[id] = rec
	}
	return battles, nil
}

func (c *RemoteClient) Save(ctx context.Context, accessKey string, snap domain.Snapshot, playerID string) error {
	if snap.Battles == nil {
		snap.Battles = map[string]*domain.BattleRecord{}
	}
	if snap.Players == nil {
		snap.Players = domain.PlayerDirectory{}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	headers := map[string]string{}
	if playerID != "" {
		headers["X-Player-ID"] = playerID
	}
	if err := doExec(ctx, c, fasthttp.MethodPost, c.statsURL(accessKey), body, headers); err != nil {
		return &domain.TransientError{Op: "save", Err: err}
	}
	return nil
}

func (c *RemoteClient) Clear(ctx context.Context, accessKey string) error {
	u := fmt.Sprintf("%s/clear/%s", c.baseURL, url.PathEscape(accessKey))
	resp, err := doRequest[statusResponse](ctx, c, fasthttp.MethodGet, u, nil, nil)
	if err != nil {
		return &domain.TransientError{Op: "clear", Err: err}
	}
	if !resp.Success {
		return &domain.TransientError{Op: "clear", Err: fmt.Errorf("remote reported failure: %s", resp.Message)}
	}
	return nil
}

func (c *RemoteClient) DeleteBattle(ctx context.Context, accessKey, arenaID string) error {
	u := fmt.Sprintf("%s/%s", c.statsURL(accessKey), url.PathEscape(arenaID))
	if err := doExec(ctx, c, fasthttp.MethodDelete, u, nil, nil); err != nil {
		return &domain.TransientError{Op: "delete battle", Err: err}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error: %d", e.code)
}

func do(ctx context.Context, client *RemoteClient, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return client.client.DoDeadline(req, resp, deadline)
	}
	return client.client.Do(req, resp)
}

func prepare(req *fasthttp.Request, method, url string, body []byte, headers map[string]string) {
	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}
}

func doRequest[T any](ctx context.Context, client *RemoteClient, method, url string, body []byte, headers map[string]string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	prepare(req, method, url, body, headers)
	if err := do(ctx, client, req, resp); err != nil {
		return nil, err
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &statusError{code: resp.StatusCode()}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// doExec is doRequest for endpoints whose body is ignored. Any 2xx counts,
// 202 means the write was accepted and is still being processed.
func doExec(ctx context.Context, client *RemoteClient, method, url string, body []byte, headers map[string]string) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	prepare(req, method, url, body, headers)
	if err := do(ctx, client, req, resp); err != nil {
		return err
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return &statusError{code: code}
	}
	return nil
}
