// Package kubernetes talks to the Kubernetes API server over REST. It backs
// the credentials secret store and the run launcher.
package kubernetes

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/resilience"
)

const (
	defaultTokenFile     = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	defaultNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"
	defaultCAFile        = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"

	contentJSON       = "application/json"
	contentMergePatch = "application/merge-patch+json"
)

// APIError is an unexpected API server response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("kubernetes api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("kubernetes api error (status=%d): %s", e.StatusCode, body)
}

// Client is a minimal API server client scoped to one namespace.
type Client struct {
	baseURL   string
	token     string
	namespace string
	http      *http.Client
	breaker   *resilience.Breaker
}

// NewClient builds a client from cfg. An empty BaseURL selects the in-cluster
// service account. breaker may be nil.
func NewClient(cfg config.Kubernetes, breaker *resilience.Breaker) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		c, err := newInClusterClient()
		if err != nil {
			return nil, err
		}
		if cfg.Namespace != "" {
			c.namespace = cfg.Namespace
		}
		c.breaker = breaker
		return c, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for local clusters
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:     cfg.Token,
		namespace: namespace,
		http:      &http.Client{Transport: transport, Timeout: 15 * time.Second},
		breaker:   breaker,
	}, nil
}

func newInClusterClient() (*Client, error) {
	host := strings.TrimSpace(os.Getenv("KUBERNETES_SERVICE_HOST"))
	port := strings.TrimSpace(os.Getenv("KUBERNETES_SERVICE_PORT"))
	baseURL := "https://kubernetes.default.svc"
	if host != "" {
		if port == "" {
			port = "443"
		}
		baseURL = "https://" + host + ":" + port
	}

	tokenBytes, err := os.ReadFile(defaultTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read serviceaccount token: %w", err)
	}
	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return nil, errors.New("serviceaccount token is empty")
	}
	namespaceBytes, err := os.ReadFile(defaultNamespaceFile)
	if err != nil {
		return nil, fmt.Errorf("read serviceaccount namespace: %w", err)
	}
	caBytes, err := os.ReadFile(defaultCAFile)
	if err != nil {
		return nil, fmt.Errorf("read serviceaccount ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("invalid serviceaccount ca bundle")
	}

	return &Client{
		baseURL:   baseURL,
		token:     token,
		namespace: strings.TrimSpace(string(namespaceBytes)),
		http: &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}},
			Timeout:   15 * time.Second,
		},
	}, nil
}

// Namespace returns the namespace all requests target.
func (c *Client) Namespace() string {
	return c.namespace
}

// TripsBreaker reports whether err counts as an API server failure. Missing
// and conflicting objects are answers, not outages.
func TripsBreaker(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrConflict)
}

func (c *Client) path(resource, name string) string {
	p := fmt.Sprintf("/api/v1/namespaces/%s/%s", c.namespace, resource)
	if name != "" {
		p += "/" + name
	}
	return p
}

// call sends a request with an optional JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path, contentType string, in, out any) error {
	fn := func(ctx context.Context) error {
		var body io.Reader
		if in != nil {
			data, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		if in != nil {
			req.Header.Set("Content-Type", contentType)
		}
		return c.do(req, out)
	}
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", contentJSON)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode kubernetes response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, domain.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, domain.ErrConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, domain.ErrPermission)
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
