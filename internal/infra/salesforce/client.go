// Package salesforce is the CRM adapter: a REST client, the outbound
// projection of every mirrored entity, the publisher that records CRM ids,
// and the inverse maps applied to CRM webhooks.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var tracer = otel.Tracer("salesforce")

// Config holds the connected-app credentials.
type Config struct {
	LoginURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
	APIVersion    string
}

// Client talks to the Salesforce REST API. Sessions come from the OAuth2
// password grant and are renewed when the API reports INVALID_SESSION_ID.
type Client struct {
	httpClient *http.Client
	oauth      *oauth2.Config
	cfg        Config
	cb         *gobreaker.CircuitBreaker
	retry      resilience.Config
	logger     *zap.Logger

	mu          sync.Mutex
	token       *oauth2.Token
	instanceURL string
}

func NewClient(httpClient *http.Client, cfg Config, cb *gobreaker.CircuitBreaker, retry resilience.Config, logger *zap.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v58.0"
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		cb:         cb,
		retry:      retry,
		logger:     logger,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(cfg.LoginURL, "/") + "/services/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Upsert PATCHes object/sfid when sfid is set, otherwise POSTs and returns
// the id Salesforce assigned.
func (c *Client) Upsert(ctx context.Context, object, sfid string, fields map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "Salesforce.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("sf.object", object), attribute.String("sf.id", sfid))

	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", object, err)
	}
	method := http.MethodPost
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/", c.cfg.APIVersion, object)
	if sfid != "" {
		method = http.MethodPatch
		path = fmt.Sprintf("/services/data/%s/sobjects/%s/%s", c.cfg.APIVersion, object, sfid)
	}

	result, err := c.cb.Execute(func() (any, error) {
		var id string
		innerErr := resilience.RetryWithBackoff(ctx, c.retry, func() error {
			var err error
			id, err = c.send(ctx, method, path, body)
			return err
		})
		return id, innerErr
	})
	if err != nil {
		return "", c.wrap(object, sfid, err)
	}
	if sfid != "" {
		return sfid, nil
	}
	id, _ := result.(string)
	if id == "" {
		return "", &domain.ErrExternalService{Service: "salesforce", Err: fmt.Errorf("create %s returned no id", object)}
	}
	return id, nil
}

func (c *Client) wrap(object, sfid string, err error) error {
	var (
		cfgErr *domain.ErrConfiguration
		crmErr *domain.ErrCRM
	)
	switch {
	case errors.As(err, &cfgErr):
		c.logger.Error("salesforce rejected credentials: check credentials / account locked",
			zap.Int("status", cfgErr.Status))
		return cfgErr
	case errors.As(err, &crmErr):
		c.logger.Warn("salesforce upsert failed",
			zap.String("object", object),
			zap.String("salesforce_id", sfid),
			zap.String("error_code", crmErr.Code),
			zap.Int("status", crmErr.Status),
		)
		return crmErr
	case resilience.IsOpen(err):
		return &domain.ErrCircuitOpen{Service: "salesforce"}
	}
	return &domain.ErrExternalService{Service: "salesforce", Err: err}
}

// send performs one request, logging in again once when the session expired.
func (c *Client) send(ctx context.Context, method, path string, body []byte) (string, error) {
	for attempt := 0; ; attempt++ {
		token, base, err := c.session(ctx, attempt > 0)
		if err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, method, base+path, bytes.NewReader(body))
		if err != nil {
			return "", resilience.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNoContent:
			return "", nil
		case http.StatusOK, http.StatusCreated:
			var created struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(data, &created); err != nil {
				return "", resilience.Permanent(fmt.Errorf("decode salesforce response: %w", err))
			}
			return created.ID, nil
		}

		crmErr := parseError(resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized && crmErr.Code == "INVALID_SESSION_ID" && attempt == 0 {
			c.logger.Info("salesforce session expired, logging in again")
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", resilience.Permanent(&domain.ErrConfiguration{Service: "salesforce", Status: resp.StatusCode})
		}
		if resp.StatusCode >= 500 {
			return "", crmErr
		}
		return "", resilience.Permanent(crmErr)
	}
}

// session returns the access token and instance URL, logging in when there
// is none or when force is set.
func (c *Client) session(ctx context.Context, force bool) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != nil && c.token.Valid() {
		return c.token.AccessToken, c.instanceURL, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.cfg.Username, c.cfg.Password+c.cfg.SecurityToken)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return "", "", resilience.Permanent(&domain.ErrConfiguration{Service: "salesforce", Status: re.Response.StatusCode})
			}
		}
		return "", "", fmt.Errorf("salesforce login: %w", err)
	}

	instance, _ := tok.Extra("instance_url").(string)
	if instance == "" {
		instance = c.cfg.LoginURL
	}
	c.token = tok
	c.instanceURL = strings.TrimRight(instance, "/")
	return tok.AccessToken, c.instanceURL, nil
}

type apiError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields"`
}

// parseError reads the CRM error array. Non-JSON bodies keep the raw text.
func parseError(status int, body []byte) *domain.ErrCRM {
	var list []apiError
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			m := e.Message
			if len(e.Fields) > 0 {
				m += " (" + strings.Join(e.Fields, ", ") + ")"
			}
			msgs = append(msgs, m)
		}
		return &domain.ErrCRM{Status: status, Code: list[0].ErrorCode, Message: strings.Join(msgs, "; ")}
	}
	var single apiError
	if err := json.Unmarshal(body, &single); err == nil && single.ErrorCode != "" {
		return &domain.ErrCRM{Status: status, Code: single.ErrorCode, Message: single.Message}
	}
	return &domain.ErrCRM{Status: status, Message: strings.TrimSpace(string(body))}
}

// BreakerFailure reports whether err should count against the circuit
// breaker. Rejected records are the caller's problem, not an outage.
func BreakerFailure(err error) bool {
	var crmErr *domain.ErrCRM
	if errors.As(err, &crmErr) {
		return crmErr.Status >= 500
	}
	return true
}
