package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/tornago"
)

// skipIfShort skips the test if -short flag is set.
// Integration tests with real Tor are slow and should be skipped in short mode.
func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires real Tor, takes 2-5 minutes)")
	}
}

// skipIfNoTor skips the test if the Tor binary is not available.
func skipIfNoTor(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tor"); err != nil {
		t.Skip("skipping integration test: Tor binary not found (install tor to run integration tests)")
	}
}

// startOnionSite serves a small site as a hidden service and returns its
// .onion address and the SOCKS address of the Tor daemon. Everything is
// torn down with the test.
//
//nolint:noctx // context is used for Tor operations, not for net.Listen
func startOnionSite(ctx context.Context, t *testing.T) (onionAddr, socksAddr string) {
	t.Helper()

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	localPort := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><body><h1>Mirror</h1></body></html>`))
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("HTTP server error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = server.Close() })

	t.Log("Starting Tor daemon...")
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(5*time.Minute),
	)
	if err != nil {
		t.Fatalf("failed to create Tor launch config: %v", err)
	}
	torProcess, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		t.Fatalf("failed to start Tor daemon: %v", err)
	}
	t.Cleanup(func() { _ = torProcess.Stop() })

	auth := tornago.ControlAuthFromCookie(filepath.Join(torProcess.DataDir(), "control_auth_cookie"))
	controlClient, err := tornago.NewControlClient(torProcess.ControlAddr(), auth, 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create control client: %v", err)
	}
	t.Cleanup(func() { controlClient.Close() })
	if err := controlClient.Authenticate(); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}

	hsCfg, err := tornago.NewHiddenServiceConfig(tornago.WithHiddenServicePort(80, localPort))
	if err != nil {
		t.Fatalf("failed to create hidden service config: %v", err)
	}
	hs, err := controlClient.CreateHiddenService(ctx, hsCfg)
	if err != nil {
		t.Fatalf("failed to create hidden service: %v", err)
	}
	onionAddr = hs.OnionAddress()
	t.Logf("Hidden service created: %s", onionAddr)

	clientCfg, err := tornago.NewClientConfig(
		tornago.WithClientSocksAddr(torProcess.SocksAddr()),
		tornago.WithClientRequestTimeout(30*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create client config: %v", err)
	}
	client, err := tornago.NewClient(clientCfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	// Descriptors take a while to publish.
	for i := range 24 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+onionAddr+"/", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.HTTP().Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("Hidden service is reachable after %d attempts", i+1)
				return onionAddr, torProcess.SocksAddr()
			}
		}
		select {
		case <-ctx.Done():
			t.Fatal("context cancelled while waiting for hidden service")
		case <-time.After(5 * time.Second):
		}
	}
	t.Fatal("hidden service not reachable after 2 minutes")
	return "", ""
}

// TestIntegrationCheckOnionLinks checks a site linking to a live hidden
// service through an external Tor proxy.
//
// Note: This test takes 3-5 minutes to complete due to Tor bootstrapping.
func TestIntegrationCheckOnionLinks(t *testing.T) {
	skipIfShort(t)
	skipIfNoTor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	onionAddr, socksAddr := startOnionSite(ctx, t)

	root, cfg := writeSite(t, map[string]string{
		"index.html": `<a href="http://` + onionAddr + `/">mirror</a>`,
	})
	stdout, _, err := execute(t, "check", root, "-c", cfg, "--no-cache", "--no-color",
		"--socks-proxy", socksAddr, "--timeout", "60s")
	if err != nil {
		t.Fatalf("expected the onion link to pass, got %v\n%s", err, stdout)
	}

	root, cfg = writeSite(t, map[string]string{
		"index.html": `<a href="http://` + onionAddr + `/missing">gone</a>`,
	})
	stdout, _, err = execute(t, "check", root, "-c", cfg, "--no-cache", "--no-color",
		"--socks-proxy", socksAddr, "--timeout", "60s", "--retries", "0")
	if !errors.Is(err, errChecksFailed) {
		t.Fatalf("expected the missing page to fail, got %v", err)
	}
	if !strings.Contains(stdout, "404") {
		t.Errorf("expected an HTTP 404 in the report, got:\n%s", stdout)
	}
}
