package kubernetes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/CloudLaunch/internal/cloud"
	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/domain"
	"github.com/Strob0t/CloudLaunch/internal/domain/region"
	"github.com/Strob0t/CloudLaunch/internal/domain/run"
	"github.com/Strob0t/CloudLaunch/internal/port/secretstore"
	"github.com/Strob0t/CloudLaunch/internal/resilience"
)

// fakeAPI is an in-memory API server for secrets and pods in one namespace.
type fakeAPI struct {
	mu      sync.Mutex
	secrets map[string]*Secret
	pods    map[string]*Pod
	version int
	failAll bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{secrets: map[string]*Secret{}, pods: map[string]*Pod{}}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("Authorization") != "Bearer test-token" {
		http.Error(w, "no token", http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/namespaces/ns/")
	kind, name, _ := strings.Cut(rest, "/")
	switch kind {
	case "secrets":
		f.serveSecret(w, r, name)
	case "pods":
		f.servePod(w, r, name)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) serveSecret(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		s, ok := f.secrets[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(s)
	case http.MethodPost:
		var s Secret
		_ = json.NewDecoder(r.Body).Decode(&s)
		if _, ok := f.secrets[s.Metadata.Name]; ok {
			http.Error(w, "exists", http.StatusConflict)
			return
		}
		f.version++
		s.Metadata.ResourceVersion = strconv.Itoa(f.version)
		f.secrets[s.Metadata.Name] = &s
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(s)
	case http.MethodPut:
		var s Secret
		_ = json.NewDecoder(r.Body).Decode(&s)
		cur, ok := f.secrets[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if s.Metadata.ResourceVersion != cur.Metadata.ResourceVersion {
			http.Error(w, "stale", http.StatusConflict)
			return
		}
		f.secrets[name] = &s
		_ = json.NewEncoder(w).Encode(s)
	case http.MethodPatch:
		if r.Header.Get("Content-Type") != contentMergePatch {
			http.Error(w, "bad patch type", http.StatusUnsupportedMediaType)
			return
		}
		cur, ok := f.secrets[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var patch struct {
			Data map[string]*[]byte `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if cur.Data == nil {
			cur.Data = map[string][]byte{}
		}
		for k, v := range patch.Data {
			if v == nil {
				delete(cur.Data, k)
				continue
			}
			cur.Data[k] = *v
		}
		_ = json.NewEncoder(w).Encode(cur)
	}
}

func (f *fakeAPI) servePod(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodPost:
		var p Pod
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.Status.Phase = "Pending"
		f.pods[p.Metadata.Name] = &p
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(p)
	case http.MethodGet:
		p, ok := f.pods[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	case http.MethodDelete:
		if _, ok := f.pods[name]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(f.pods, name)
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeAPI) secret(name string) *Secret {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secrets[name]
}

func (f *fakeAPI) pod(name string) *Pod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pods[name]
}

func (f *fakeAPI) setFailAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = v
}

func newTestClient(t *testing.T, api *fakeAPI, breaker *resilience.Breaker) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.Kubernetes{BaseURL: srv.URL, Namespace: "ns", Token: "test-token"}, breaker)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestSecretStoreRefreshCreatesThenReplaces(t *testing.T) {
	api := newFakeAPI()
	store := NewSecretStore(newTestClient(t, api, nil))
	ctx := context.Background()

	ok, err := store.Exists(ctx, "creds")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := store.Refresh(ctx, "creds", map[string]string{"1": b64("a"), "2": b64("b")}); err != nil {
		t.Fatal(err)
	}

	azure := &region.Region{ID: 3, Provider: region.ProviderAzure, Azure: &region.AzureSettings{StorageAccount: "acct"}}
	value, ok := cloud.NewHelpers(cloud.Options{})[region.ProviderAzure].SerializeCredentials(azure,
		&region.Credentials{Azure: &region.AzureCredentials{StorageAccountKey: "k3y"}})
	if !ok {
		t.Fatal("azure produced no secret value")
	}
	if err := store.Refresh(ctx, "creds", map[string]string{"3": value}); err != nil {
		t.Fatal(err)
	}

	got := api.secret("creds")
	if len(got.Data) != 1 || got.Type != "Opaque" {
		t.Fatalf("secret = %+v", got)
	}
	var mounted map[string]string
	if err := json.Unmarshal(got.Data["3"], &mounted); err != nil {
		t.Fatalf("mounted value %q is not JSON: %v", got.Data["3"], err)
	}
	if mounted["storage_account"] != "acct" || mounted["storage_key"] != "k3y" {
		t.Errorf("mounted = %v", mounted)
	}
}

func TestSecretStoreRejectsUnencodedValues(t *testing.T) {
	api := newFakeAPI()
	store := NewSecretStore(newTestClient(t, api, nil))

	err := store.Refresh(context.Background(), "creds", map[string]string{"1": "not base64!"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if ok, _ := store.Exists(context.Background(), "creds"); ok {
		t.Error("secret must not be created from invalid values")
	}
}

func TestSecretStoreUpdate(t *testing.T) {
	api := newFakeAPI()
	store := NewSecretStore(newTestClient(t, api, nil))
	ctx := context.Background()

	err := store.Update(ctx, "creds", map[string]string{"1": b64("x")}, nil)
	if !errors.Is(err, secretstore.ErrNotFound) {
		t.Fatalf("Update on missing secret = %v", err)
	}

	if err := store.Refresh(ctx, "creds", map[string]string{"1": b64("a"), "2": b64("b")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, "creds", map[string]string{"2": b64("B"), "4": b64("d")}, []string{"1"}); err != nil {
		t.Fatal(err)
	}

	data := api.secret("creds").Data
	want := map[string]string{"2": "B", "4": "d"}
	if len(data) != len(want) {
		t.Fatalf("data = %v", data)
	}
	for k, v := range want {
		if string(data[k]) != v {
			t.Errorf("data[%s] = %q, want %q", k, data[k], v)
		}
	}
}

func TestLauncherLifecycle(t *testing.T) {
	api := newFakeAPI()
	l := NewLauncher(newTestClient(t, api, nil), "runner")
	ctx := context.Background()

	parent := int64(7)
	r := &run.Run{
		ID:          42,
		DockerImage: "library/tool:latest",
		CmdTemplate: "sleep infinity",
		Owner:       "alice",
		ParentRunID: &parent,
		Instance: run.Instance{
			CloudProvider: region.ProviderAWS, CloudRegionID: 3, NodeType: "m5.large", NodeDisk: 50, NodeCount: 1,
		},
		PipelineRunParameters: run.Parameters{"b": {Value: "2"}, "a": {Value: "1"}},
	}

	podID, err := l.Launch(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if podID != "run-42" {
		t.Errorf("pod id = %q", podID)
	}

	pod := api.pod("run-42")
	if pod.Spec.NodeSelector[nodeSelectorInstanceType] != "m5.large" {
		t.Errorf("node selector = %v", pod.Spec.NodeSelector)
	}
	if pod.Spec.ServiceAccountName != "runner" || pod.Spec.RestartPolicy != "Never" {
		t.Errorf("spec = %+v", pod.Spec)
	}
	c := pod.Spec.Containers[0]
	if c.Resources.Requests["ephemeral-storage"] != "50Gi" {
		t.Errorf("requests = %v", c.Resources.Requests)
	}
	var names []string
	for _, e := range c.Env {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "RUN_ID,CLOUD_PROVIDER,CLOUD_REGION_ID,OWNER,PARENT_ID,a,b" {
		t.Errorf("env order = %s", got)
	}

	found, err := l.FindPod(ctx, podID)
	if err != nil {
		t.Fatal(err)
	}
	if found.RunID != 42 || found.Phase != "Pending" {
		t.Errorf("pod = %+v", found)
	}

	if err := l.Stop(ctx, podID); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(ctx, podID); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	api := newFakeAPI()
	breaker := resilience.NewBreaker(1, time.Minute, resilience.WithFailureFilter(TripsBreaker))
	store := NewSecretStore(newTestClient(t, api, breaker))
	ctx := context.Background()

	for range 3 {
		if _, err := store.Exists(ctx, "missing"); err != nil {
			t.Fatal(err)
		}
	}
	if breaker.State() != resilience.StateClosed {
		t.Fatalf("breaker = %s after not-found answers", breaker.State())
	}

	api.setFailAll(true)
	if _, err := store.Exists(ctx, "missing"); err == nil {
		t.Fatal("expected api error")
	}
	if breaker.State() != resilience.StateOpen {
		t.Fatalf("breaker = %s after server error", breaker.State())
	}
	_, err := store.Exists(ctx, "missing")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}
