package mcp

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServer_Run_InvalidMode(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.Mode = "invalid"

	err := env.server.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestServer_Run_StdioMode(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.Mode = "stdio"

	// stdin that never delivers a line
	stdinReader, stdinWriter := io.Pipe()
	defer stdinWriter.Close()
	var stdout bytes.Buffer
	env.server.stdin = stdinReader
	env.server.stdout = &stdout

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stdio server did not stop after cancel")
	}
}

func TestServer_Run_StdioAnswersRequests(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.Mode = "stdio"

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	env.server.stdin = stdinReader
	env.server.stdout = stdoutWriter

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	lines := make(chan string, 4)
	go func() {
		buf := make([]byte, 64*1024)
		var acc strings.Builder
		for {
			n, err := stdoutReader.Read(buf)
			acc.Write(buf[:n])
			for {
				s := acc.String()
				i := strings.IndexByte(s, '\n')
				if i < 0 {
					break
				}
				lines <- s[:i]
				acc.Reset()
				acc.WriteString(s[i+1:])
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()

	send := func(msg string) {
		_, err := io.WriteString(stdinWriter, msg+"\n")
		require.NoError(t, err)
	}
	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("no response from stdio server")
			return ""
		}
	}

	send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`)
	assert.Contains(t, next(), `"test-server"`)

	send(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	list := next()
	for _, tool := range []string{"form_intake", "form_answer", "form_status", "form_export", "form_dispose", "form_server_info"} {
		assert.Contains(t, list, `"`+tool+`"`)
	}

	cancel()
	_ = stdinWriter.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stdio server did not stop after cancel")
	}
	_ = stdoutWriter.Close()
}

func TestServer_Run_ServerModeGracefulShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.Mode = "server"
	env.server.config.Host = "127.0.0.1"
	env.server.config.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	url := "http://" + env.server.config.Address() + "/sse"
	require.Eventually(t, func() bool {
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer reqCancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond, "sse endpoint never came up")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("sse server did not shut down")
	}
}

func TestServer_Run_ServerModePortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	env := newTestEnv(t)
	env.server.config.Mode = "server"
	env.server.config.Host = "127.0.0.1"
	env.server.config.Port = l.Addr().(*net.TCPAddr).Port

	err = env.server.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to serve sse")
}
