package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// startFakeProxy serves one connection with handler and returns its address.
func startFakeProxy(t *testing.T, handler func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return listener.Addr().String()
}

// TestNewClient tests proxy address validation.
func TestNewClient(t *testing.T) {
	t.Parallel()

	for _, addr := range []string{"127.0.0.1:9050", "localhost:9150", "[::1]:9050"} {
		c, err := NewClient(addr, time.Second)
		if err != nil {
			t.Errorf("NewClient(%q): %v", addr, err)
			continue
		}
		if c.ProxyAddress() != addr {
			t.Errorf("got %q, expected %q", c.ProxyAddress(), addr)
		}
	}

	for _, addr := range []string{"", "127.0.0.1", ":9050", "127.0.0.1:0", "127.0.0.1:70000", "127.0.0.1:tor"} {
		if _, err := NewClient(addr, time.Second); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("NewClient(%q) = %v, expected ErrInvalidProxyAddress", addr, err)
		}
	}
}

// TestCheckConnection tests the SOCKS5 verification against fake proxies.
func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("working proxy", func(t *testing.T) {
		t.Parallel()
		addr := startFakeProxy(t, func(conn net.Conn) {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(conn, greeting); err != nil {
				return
			}
			_, _ = conn.Write([]byte{0x05, 0x00})

			// CONNECT header + length-prefixed host + port
			header := make([]byte, 5)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			rest := make([]byte, int(header[4])+2)
			if _, err := io.ReadFull(conn, rest); err != nil {
				return
			}
			// host unreachable, as Tor answers for unknown services
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})

		c, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if status := c.CheckConnection(context.Background()); status != ProxyStatusOK {
			t.Errorf("got %v, expected OK", status)
		}
	})

	t.Run("http server", func(t *testing.T) {
		t.Parallel()
		addr := startFakeProxy(t, func(conn net.Conn) {
			_, _ = conn.Read(make([]byte, 3))
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		})

		c, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		status := c.CheckConnection(context.Background())
		if status != ProxyStatusWrongType {
			t.Errorf("got %v, expected wrong type", status)
		}
		if !errors.Is(status.Err(), ErrProxyNotTor) {
			t.Errorf("got %v, expected ErrProxyNotTor", status.Err())
		}
	})

	t.Run("proxy requiring authentication", func(t *testing.T) {
		t.Parallel()
		addr := startFakeProxy(t, func(conn net.Conn) {
			_, _ = conn.Read(make([]byte, 3))
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})

		c, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if status := c.CheckConnection(context.Background()); status != ProxyStatusWrongType {
			t.Errorf("got %v, expected wrong type", status)
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		c, err := NewClient(addr, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if status := c.CheckConnection(context.Background()); status != ProxyStatusCannotConnect {
			t.Errorf("got %v, expected cannot connect", status)
		}
	})
}

// TestTransport tests that the transport dials through the proxy.
func TestTransport(t *testing.T) {
	t.Parallel()

	c, err := NewClient("127.0.0.1:9050", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	tr := c.Transport()
	if tr.DialContext == nil {
		t.Error("expected a proxy dialer")
	}
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected certificate verification to be disabled for onion services")
	}
	if tr.TLSHandshakeTimeout != 5*time.Second {
		t.Errorf("got handshake timeout %v", tr.TLSHandshakeTimeout)
	}
}

// TestProxyStatus tests the status strings and errors.
func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ProxyStatus
		text   string
		err    error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not Tor)", ErrProxyNotTor},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}
	for _, tt := range tests {
		if tt.status.String() != tt.text {
			t.Errorf("got %q, expected %q", tt.status.String(), tt.text)
		}
		if !errors.Is(tt.status.Err(), tt.err) {
			t.Errorf("got %v, expected %v", tt.status.Err(), tt.err)
		}
	}
	if ProxyStatus(99).Err() == nil {
		t.Error("expected an error for an unknown status")
	}
}

// TestEmbeddedTorBeforeStart tests the manager without launching Tor.
func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithStartupTimeout(time.Minute))
	if e.startupTimeout != time.Minute {
		t.Errorf("got timeout %v, expected 1m", e.startupTimeout)
	}
	if e.IsRunning() || e.SocksAddr() != "" {
		t.Error("expected a stopped daemon")
	}
	if _, err := e.NewClient(time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("got %v, expected ErrNotRunning", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on a stopped daemon: %v", err)
	}

	if NewEmbeddedTor(WithStartupTimeout(0)).startupTimeout != 3*time.Minute {
		t.Error("expected zero timeout to keep the default")
	}
}
