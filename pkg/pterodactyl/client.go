package pterodactyl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

const (
	applicationPrefix = "/api/application"
	clientPrefix      = "/api/client"
	startupCommand    = "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar {{SERVER_JARFILE}}"
	defaultIOWeight   = 500
	defaultTimeout    = 15 * time.Second
	maxResponseBody   = 1 << 20
)

var (
	errURLRequired    = errors.New("pterodactyl url is required")
	errAPIKeyRequired = errors.New("pterodactyl api key is required")
	errLoggerRequired = errors.New("pterodactyl logger is required")
)

// Client wraps the Pterodactyl application and client APIs.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	nodeID      int
	eggID       int
	dockerImage string
	logger      *logger.Logger
}

func NewClient(ctx context.Context, cfg config.PterodactylConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errURLRequired
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     base,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		nodeID:      cfg.NodeID,
		eggID:       cfg.EggID,
		dockerImage: cfg.DockerImage,
		logger:      logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"node_id": cfg.NodeID, "egg_id": cfg.EggID}), "pterodactyl client initialized")
	return c, nil
}

type userAttributes struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type allocationAttributes struct {
	ID       int64  `json:"id"`
	IP       string `json:"ip"`
	Alias    string `json:"alias"`
	Port     int    `json:"port"`
	Assigned bool   `json:"assigned"`
}

type envelope[T any] struct {
	Attributes T `json:"attributes"`
}

type list[T any] struct {
	Data []envelope[T] `json:"data"`
}

// EnsureIdentity returns the panel user id for req.Email, creating the user
// when it does not exist yet. A 422 on create means a prior attempt already
// created it, so the lookup is repeated.
func (c *Client) EnsureIdentity(ctx context.Context, req IdentityRequest) (int64, error) {
	if strings.TrimSpace(req.Email) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "identity email is required")
	}
	if existing, err := c.userByEmail(ctx, req.Email); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, nil
	}

	payload := map[string]any{
		"email":      req.Email,
		"username":   req.Username,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}
	var created envelope[userAttributes]
	status, err := c.do(ctx, http.MethodPost, applicationPrefix+"/users", payload, &created)
	if err != nil {
		if status == http.StatusUnprocessableEntity {
			existing, lookupErr := c.userByEmail(ctx, req.Email)
			if lookupErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return 0, err
	}
	c.log(ctx, "response", "create_user", map[string]any{"user_id": created.Attributes.ID})
	return created.Attributes.ID, nil
}

func (c *Client) userByEmail(ctx context.Context, email string) (*userAttributes, error) {
	path := applicationPrefix + "/users?filter[email]=" + url.QueryEscape(email)
	var out list[userAttributes]
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for _, item := range out.Data {
		if strings.EqualFold(item.Attributes.Email, email) {
			attrs := item.Attributes
			return &attrs, nil
		}
	}
	return nil, nil
}

// Allocate claims a free port on the configured node and creates a server on it.
func (c *Client) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	if req.IdentityID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "server name is required")
	}

	alloc, err := c.freeAllocation(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name":         req.Name,
		"user":         req.IdentityID,
		"egg":          c.eggID,
		"docker_image": c.dockerImage,
		"startup":      startupCommand,
		"environment": map[string]string{
			"SERVER_JARFILE":  "server.jar",
			"VANILLA_VERSION": "latest",
		},
		"limits": map[string]int{
			"memory": req.Capacity.MemoryMB,
			"swap":   0,
			"disk":   req.Capacity.DiskMB,
			"io":     defaultIOWeight,
			"cpu":    req.Capacity.CPU,
		},
		"feature_limits": map[string]int{
			"databases":   req.Capacity.Databases,
			"backups":     req.Capacity.Backups,
			"allocations": 1,
		},
		"allocation": map[string]int64{
			"default": alloc.ID,
		},
	}

	c.log(ctx, "request", "create_server", map[string]any{"name": req.Name, "allocation_id": alloc.ID})
	var created envelope[ServerDetails]
	if _, err := c.do(ctx, http.MethodPost, applicationPrefix+"/servers", payload, &created); err != nil {
		return nil, err
	}

	ip := alloc.IP
	if alloc.Alias != "" {
		ip = alloc.Alias
	}
	port := alloc.Port
	result := &Allocation{
		ServerID:   created.Attributes.ID,
		Identifier: created.Attributes.Identifier,
		IP:         &ip,
		Port:       &port,
	}
	c.log(ctx, "response", "create_server", map[string]any{
		"server_id":  result.ServerID,
		"identifier": result.Identifier,
	})
	return result, nil
}

func (c *Client) freeAllocation(ctx context.Context) (*allocationAttributes, error) {
	path := fmt.Sprintf("%s/nodes/%d/allocations?per_page=100", applicationPrefix, c.nodeID)
	var out list[allocationAttributes]
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for _, item := range out.Data {
		if !item.Attributes.Assigned {
			attrs := item.Attributes
			return &attrs, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "no free allocation on pterodactyl node")
}

func (c *Client) GetServer(ctx context.Context, serverID int64) (*ServerDetails, error) {
	var out envelope[ServerDetails]
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/servers/%d", applicationPrefix, serverID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Attributes, nil
}

func (c *Client) Suspend(ctx context.Context, serverID int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/servers/%d/suspend", applicationPrefix, serverID), nil, nil)
	return err
}

func (c *Client) Unsuspend(ctx context.Context, serverID int64) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/servers/%d/unsuspend", applicationPrefix, serverID), nil, nil)
	return err
}

func (c *Client) Delete(ctx context.Context, serverID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/servers/%d", applicationPrefix, serverID), nil, nil)
	return err
}

// ResourceUsage reads live stats through the client API by server identifier.
func (c *Client) ResourceUsage(ctx context.Context, identifier string) (*ResourceUsage, error) {
	var out envelope[ResourceUsage]
	path := fmt.Sprintf("%s/servers/%s/resources", clientPrefix, url.PathEscape(identifier))
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Attributes, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pterodactyl request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pterodactyl request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", method+" "+path, map[string]any{"error": err.Error()})
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pterodactyl request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read pterodactyl response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		mapped := mapHTTPError(resp.StatusCode, raw)
		c.log(ctx, "error", method+" "+path, map[string]any{"status": resp.StatusCode, "error": mapped.Error()})
		return resp.StatusCode, mapped
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode pterodactyl response")
	}
	return resp.StatusCode, nil
}

func mapHTTPError(status int, body []byte) error {
	cause := pkgerrors.NewUpstreamError("pterodactyl", status, body)
	switch status {
	case http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "pterodactyl resource not found")
	case http.StatusUnprocessableEntity:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "pterodactyl rejected request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "pterodactyl request failed")
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Error(ctx, "pterodactyl "+op, fmt.Errorf("%v", fields["error"]))
		return
	}
	c.logger.Info(ctx, "pterodactyl "+phase)
}
