package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-pipeline/internal/config"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	apperrors "github.com/spec-kit/intake-pipeline/pkg/errorutil"
)

// TicketingClient is the surface the workers and the monitor consume.
type TicketingClient interface {
	CreateTicket(ctx context.Context, in CreateTicketInput) (int, error)
	GetTicket(ctx context.Context, id int) (*RemoteTicket, error)
	UpdateTicket(ctx context.Context, id int, fields map[string]any) error
	AssignTicket(ctx context.Context, ticketID, remoteUserID int) error
	AddFollowup(ctx context.Context, ticketID int, followup Followup) error
	SearchTickets(ctx context.Context, criteria []SearchCriterion) ([]RemoteTicket, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// Client talks to the GLPI REST API. The session token is lazily
// initialized, cached in the shared token store with a TTL shorter than the
// remote session lifetime, and refreshed at most once per call on an
// unauthorized response.
type Client struct {
	cfg    config.GLPIConfig
	tokens TokenStore
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a client using the shared token store.
func NewClient(cfg config.GLPIConfig, tokens TokenStore, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout()},
		logger: logger.With(zap.String("component", "glpi")),
	}
}

// InitSession authenticates with the user token and caches the returned
// session token.
func (c *Client) InitSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/initSession", nil)
	if err != nil {
		return "", apperrors.NewExternalServiceError("build init request", err)
	}
	req.Header.Set("App-Token", c.cfg.AppToken)
	req.Header.Set("Authorization", "user_token "+c.cfg.UserToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.NewExternalServiceError("init session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperrors.NewExternalServiceError(
			fmt.Sprintf("init session: status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var out struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.NewExternalServiceError("decode init response", err)
	}
	if out.SessionToken == "" {
		return "", apperrors.NewExternalServiceError("empty session token", nil)
	}

	if err := c.tokens.Set(ctx, out.SessionToken, c.cfg.SessionTTL()); err != nil {
		c.logger.Warn("cache session token", zap.Error(err))
	}
	return out.SessionToken, nil
}

// KillSession invalidates the remote session and drops the cached token.
func (c *Client) KillSession(ctx context.Context) error {
	err := c.call(ctx, http.MethodGet, "/killSession", nil, nil)
	if clearErr := c.tokens.Clear(ctx); clearErr != nil {
		c.logger.Warn("clear cached token", zap.Error(clearErr))
	}
	return err
}

// CreateTicket creates a remote ticket and returns its id. Unset fields map
// to the fixed defaults.
func (c *Client) CreateTicket(ctx context.Context, in CreateTicketInput) (int, error) {
	if in.Status == 0 {
		in.Status = StatusNew
	}
	if in.Urgency == 0 {
		in.Urgency = UrgencyMedium
	}
	if in.Type == 0 {
		in.Type = TypeIncident
	}

	input := map[string]any{
		"name":    in.Name,
		"content": in.Content,
		"status":  in.Status,
		"urgency": in.Urgency,
		"type":    in.Type,
	}
	if in.Category != "" {
		input["itilcategories_id"] = in.Category
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/Ticket", map[string]any{"input": input}, &out); err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, apperrors.NewExternalServiceError("remote ticket without id", nil)
	}
	return out.ID, nil
}

// GetTicket fetches one remote ticket.
func (c *Client) GetTicket(ctx context.Context, id int) (*RemoteTicket, error) {
	var out RemoteTicket
	if err := c.call(ctx, http.MethodGet, "/Ticket/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTicket applies a partial update to the remote ticket.
func (c *Client) UpdateTicket(ctx context.Context, id int, fields map[string]any) error {
	return c.call(ctx, http.MethodPut, "/Ticket/"+strconv.Itoa(id), map[string]any{"input": fields}, nil)
}

// AddFollowup attaches a followup note to the remote ticket.
func (c *Client) AddFollowup(ctx context.Context, ticketID int, followup Followup) error {
	isPrivate := 0
	if followup.IsPrivate {
		isPrivate = 1
	}
	input := map[string]any{
		"itemtype":   "Ticket",
		"items_id":   ticketID,
		"content":    followup.Content,
		"is_private": isPrivate,
	}
	return c.call(ctx, http.MethodPost, "/Ticket/"+strconv.Itoa(ticketID)+"/ITILFollowup",
		map[string]any{"input": input}, nil)
}

// SearchTickets queries the remote search endpoint with the given criteria.
func (c *Client) SearchTickets(ctx context.Context, criteria []SearchCriterion) ([]RemoteTicket, error) {
	params := url.Values{}
	for i, criterion := range criteria {
		prefix := fmt.Sprintf("criteria[%d]", i)
		if i > 0 {
			params.Set(prefix+"[link]", "AND")
		}
		params.Set(prefix+"[field]", strconv.Itoa(criterion.Field))
		params.Set(prefix+"[searchtype]", criterion.SearchType)
		params.Set(prefix+"[value]", criterion.Value)
	}

	var out struct {
		Data []RemoteTicket `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/search/Ticket?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListGroups lists remote assignment groups.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out []Group
	if err := c.call(ctx, http.MethodGet, "/Group", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUsers lists remote user accounts.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.call(ctx, http.MethodGet, "/User", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call issues one authenticated request. On an unauthorized response the
// cached token is dropped and the call retried with a fresh session exactly
// once; the retry budget is an explicit counter, never recursion.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	for attempt := 0; attempt <= 1; attempt++ {
		token, err := c.tokens.Get(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoToken) {
				return apperrors.NewExternalServiceError("read cached token", err)
			}
			if token, err = c.InitSession(ctx); err != nil {
				return err
			}
		}

		status, err := c.do(ctx, method, path, token, body, out)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			if clearErr := c.tokens.Clear(ctx); clearErr != nil {
				c.logger.Warn("clear expired token", zap.Error(clearErr))
			}
			continue
		}
		return nil
	}
	return apperrors.NewExternalServiceError("unauthorized after session refresh", nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, apperrors.NewExternalServiceError("marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, apperrors.NewExternalServiceError("build request", err)
	}
	req.Header.Set("App-Token", c.cfg.AppToken)
	req.Header.Set("Session-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperrors.NewExternalServiceError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, apperrors.NewExternalServiceError(
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data)), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, apperrors.NewExternalServiceError("decode response", err)
		}
	}
	return resp.StatusCode, nil
}

// AssignTicket mirrors a local assignment onto the remote ticket.
func (c *Client) AssignTicket(ctx context.Context, ticketID, remoteUserID int) error {
	return c.UpdateTicket(ctx, ticketID, map[string]any{
		"status":             StatusAssigned,
		"users_id_recipient": remoteUserID,
	})
}

var _ TicketingClient = (*Client)(nil)

// InputFromTicket maps a local ticket onto creation input.
func InputFromTicket(t *domain.Ticket) CreateTicketInput {
	return CreateTicketInput{
		Name:    t.Title,
		Content: t.Description,
		Status:  StatusFromLocal(t.Status),
		Urgency: UrgencyFromPriority(t.Priority),
		Type:    TypeIncident,
	}
}
